package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/config"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/runlock"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/statusserver"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/syncer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one Catalog Sync pass",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	c, err := buildComponents(settings)
	if err != nil {
		return err
	}
	defer c.ledger.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var lock *runlock.Lock
	if settings.RedisURL != "" {
		lock, err = runlock.New(settings.RedisURL, "catalog-sync")
		if err != nil {
			return err
		}
		defer lock.Close()

		held, err := lock.Acquire(ctx, config.RunLockTTL)
		if err != nil {
			return err
		}
		if !held {
			c.log.Warn("another run already holds the lock, skipping")
			return nil
		}
		defer lock.Release(ctx)
	}

	// metrics is always built so the driver can record phase counters even
	// when the status/metrics HTTP server itself is disabled; it simply
	// goes unscraped in that case.
	registry := prometheus.NewRegistry()
	metrics := statusserver.NewMetrics(registry)

	var status *statusserver.Status
	if settings.StatusAddr != "" {
		status = &statusserver.Status{}
		srv := statusserver.New(settings.StatusAddr, status, registry)
		go func() {
			if err := srv.Start(); err != nil {
				c.log.WithError(err).Error("status server stopped")
			}
		}()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		defer srv.Shutdown(shutdownCtx)
		status.SetRunning(true)
	}

	driver := syncer.New(c.source, c.upload, c.registrar, c.ledger, settings.DestinationAccessToken, nil, c.log, metrics)
	runErr := driver.RunAll(ctx)
	if status != nil {
		status.RecordResult(runErr, time.Now())
	}
	return runErr
}
