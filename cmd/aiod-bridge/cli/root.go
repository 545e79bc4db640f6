// Package cli wires the bridge's configuration, logging, clients and
// Catalog Sync driver together behind a small cobra command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/config"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/destination"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/memory"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/obslog"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/platform"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/source"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/translator"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/uploader"
)

var cfgFile string

// RootCmd is the aiod-bridge entry point.
var RootCmd = &cobra.Command{
	Use:   "aiod-bridge",
	Short: "Sync AI-asset records from a source search API into a destination catalog",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./aiod-bridge.yaml)")
	RootCmd.AddCommand(runCmd, verifyCmd)
}

func loadSettings() (config.Settings, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("aiod-bridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return config.Settings{}, fmt.Errorf("cli: reading config file: %w", err)
		}
	}
	return config.Load(v)
}

// components bundles everything a run or verify command needs, built once
// from Settings.
type components struct {
	settings  config.Settings
	log       *obslog.ContextLogger
	ledger    memory.Ledger
	source    *source.Client
	dest      *destination.Client
	registrar *platform.Registrar
	trans     *translator.Translator
	upload    *uploader.Uploader
	types     config.TypeEndpointMap
}

func buildComponents(settings config.Settings) (*components, error) {
	logCfg := obslog.DefaultConfig()
	if settings.LogLevel != "" {
		logCfg.Level = obslog.Level(settings.LogLevel)
	}
	if settings.LogFormat != "" {
		logCfg.Format = settings.LogFormat
	}
	baseLogger := obslog.New(logCfg)
	log := obslog.NewContextLogger(baseLogger, map[string]interface{}{"component": "aiod-bridge"})

	ledger, err := memory.Open(settings.LedgerDSN, settings.TimestampFormat)
	if err != nil {
		return nil, err
	}

	queries := source.Default()
	srcClient := source.New(settings.SourceEndpoint, queries, settings.TimestampFormat)

	destClient := destination.New(destination.Config{
		BaseURL:          settings.DestinationBaseURL,
		OIDCIssuerURL:    settings.DestinationOIDCIssuer,
		OIDCClientID:     settings.DestinationOIDCClientID,
		OIDCClientSecret: settings.DestinationOIDCSecret,
	})

	platformDoc, err := config.LoadPlatformDoc(settings.ConfigFolder)
	if err != nil {
		return nil, err
	}
	registrar, err := platform.New(destClient, log, platformDoc.Name, platformDoc.Identifier)
	if err != nil {
		return nil, err
	}

	registry, err := config.NewTranslatorRegistry(settings.ConfigFolder)
	if err != nil {
		return nil, err
	}
	trans := translator.New(registry.Load)

	types, err := config.LoadTypeEndpointMap(settings.ConfigFolder)
	if err != nil {
		return nil, err
	}

	up := uploader.New(destClient, trans, uploader.MapTypeEndpoints(types), log)

	return &components{
		settings:  settings,
		log:       log,
		ledger:    ledger,
		source:    srcClient,
		dest:      destClient,
		registrar: registrar,
		trans:     trans,
		upload:    up,
		types:     types,
	}, nil
}
