// Package syncer implements the Catalog Sync driver: the five-phase
// orchestration that downloads source records, translates and uploads them,
// and reconciles the durable ledger after each phase.
package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/memory"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/obslog"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/platform"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/source"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/statusserver"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/uploader"
)

// Uploader is the subset of uploader.Uploader the driver depends on.
type Uploader interface {
	ConvertAsset(ctx context.Context, record map[string]interface{}, assetType string) (bool, error)
	DeleteAsset(ctx context.Context, platformName, assetID, assetType string) (bool, error)
	CheckLogin(ctx context.Context, accessToken string) (bool, error)
}

var _ Uploader = (*uploader.Uploader)(nil)

// Driver runs the five ordered phases of one Catalog Sync pass.
type Driver struct {
	source      *source.Client
	upload      Uploader
	platform    *platform.Registrar
	ledger      memory.Ledger
	accessToken string
	now         func() time.Time
	log         *obslog.ContextLogger
	metrics     *statusserver.Metrics // nil when the caller supplies none
}

// New builds a Driver. now defaults to time.Now when nil (tests can supply
// a fixed clock). metrics may be nil, in which case the driver runs without
// recording Prometheus counters/histograms.
func New(src *source.Client, up Uploader, plat *platform.Registrar, ledger memory.Ledger, accessToken string, now func() time.Time, log *obslog.ContextLogger, metrics *statusserver.Metrics) *Driver {
	if now == nil {
		now = time.Now
	}
	return &Driver{source: src, upload: up, platform: plat, ledger: ledger, accessToken: accessToken, now: now, log: log, metrics: metrics}
}

// phaseResult tallies what one phase did, for logging and metrics -- the
// three counters a phase ever produces (newly succeeded, newly failed,
// removed from the destination).
type phaseResult struct {
	success int
	failed  int
	removed int
}

func (r phaseResult) total() int { return r.success + r.failed + r.removed }

// normalizeType mirrors the source's aitype field being lowercased and
// space-joined-by-underscore into a translator type name.
func normalizeType(aitype string) string {
	return strings.ReplaceAll(strings.ToLower(aitype), " ", "_")
}

func recordID(r map[string]interface{}) string {
	id, _ := r["_id"].(string)
	return id
}

func recordAitype(r map[string]interface{}) string {
	src, ok := r["_source"].(map[string]interface{})
	if !ok {
		return ""
	}
	aitype, _ := src["aitype"].(string)
	return aitype
}

func recordProp(r map[string]interface{}, key string) interface{} {
	src, ok := r["_source"].(map[string]interface{})
	if !ok {
		return nil
	}
	props, ok := src["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	return props[key]
}

// RunAll runs the complete five-phase pass: failed-created retry,
// newly-created ingestion, failed-modified retry, newly-modified ingestion,
// and deletion detection, persisting the ledger after each phase so a crash
// mid-run only ever replays the phase in progress.
func (d *Driver) RunAll(ctx context.Context) error {
	loggedIn, err := d.upload.CheckLogin(ctx, d.accessToken)
	if err != nil {
		return err
	}
	if !loggedIn {
		d.log.Warn("could not login to destination, aborting run")
		return nil
	}

	platformOK, err := d.platform.CheckPlatform(ctx)
	if err != nil {
		return err
	}
	if !platformOK {
		d.log.Warn("could not check the platform on the destination, aborting run")
		return nil
	}

	phases := []struct {
		name string
		fn   func(context.Context) (phaseResult, error)
	}{
		{"convert_failed_created", d.convertFailedCreated},
		{"convert_created", d.convertCreated},
		{"convert_failed_modified", d.convertFailedModified},
		{"convert_modified", d.convertModified},
		{"check_deletion", d.checkDeletion},
	}

	runStart := time.Now()
	for _, phase := range phases {
		start := time.Now()
		result, err := phase.fn(ctx)
		if err != nil {
			return err
		}
		if err := d.ledger.Save(); err != nil {
			return err
		}
		duration := time.Since(start)
		d.log.WithFields(obslog.PhaseFields(phase.name, result.total(), duration)).Debug("phase completed")

		if d.metrics != nil {
			d.metrics.AssetsConverted.WithLabelValues(phase.name).Add(float64(result.success))
			d.metrics.AssetsFailed.WithLabelValues(phase.name).Add(float64(result.failed))
			d.metrics.AssetsDeleted.Add(float64(result.removed))
		}
	}

	if d.metrics != nil {
		d.metrics.RunDuration.Observe(time.Since(runStart).Seconds())
		d.metrics.LastRunAt.Set(float64(time.Now().Unix()))
	}

	return nil
}

// convertCreated downloads, month by month, every record created since the
// ledger's high-water mark and converts it.
func (d *Driver) convertCreated(ctx context.Context) (phaseResult, error) {
	var success, failed []string
	types := map[string]string{}

	err := monthWindows(d.ledger.LatestCreated(), d.now, func(start, end, hwm time.Time) error {
		records, err := d.source.GetCreated(ctx, start, end)
		if err != nil {
			return err
		}
		for _, rec := range records {
			id := recordID(rec)
			assetType := normalizeType(recordAitype(rec))
			ok, err := d.upload.ConvertAsset(ctx, rec, assetType)
			if err != nil {
				return err
			}
			if !ok {
				failed = append(failed, id)
				continue
			}
			success = append(success, id)
			types[id] = assetType
		}
		d.ledger.SetLatestCreated(hwm)
		return nil
	})
	if err != nil {
		return phaseResult{}, err
	}

	if err := d.ledger.UpdateCreated(success, failed, types); err != nil {
		return phaseResult{}, err
	}
	return phaseResult{success: len(success), failed: len(failed)}, nil
}

// convertModified mirrors convertCreated for the modified-records window,
// skipping any record whose changed timestamp still equals its created
// timestamp (never actually modified since creation).
func (d *Driver) convertModified(ctx context.Context) (phaseResult, error) {
	var success, failed []string
	types := map[string]string{}

	err := monthWindows(d.ledger.LatestModified(), d.now, func(start, end, hwm time.Time) error {
		records, err := d.source.GetChanged(ctx, start, end)
		if err != nil {
			return err
		}
		for _, rec := range records {
			created := recordProp(rec, "created")
			changed := recordProp(rec, "changed")
			if created != nil && created == changed {
				continue
			}

			id := recordID(rec)
			assetType := normalizeType(recordAitype(rec))
			ok, err := d.upload.ConvertAsset(ctx, rec, assetType)
			if err != nil {
				return err
			}
			if !ok {
				failed = append(failed, id)
				continue
			}
			success = append(success, id)
			types[id] = assetType
		}
		d.ledger.SetLatestModified(hwm)
		return nil
	})
	if err != nil {
		return phaseResult{}, err
	}

	if err := d.ledger.UpdateModified(success, failed, types); err != nil {
		return phaseResult{}, err
	}
	return phaseResult{success: len(success), failed: len(failed)}, nil
}

// retryFailed re-downloads each id in ids by id and converts it again.
func (d *Driver) retryFailed(ctx context.Context, ids []string) (success, failed []string, types map[string]string, err error) {
	types = map[string]string{}
	for _, id := range ids {
		rec, err := d.source.GetByID(ctx, id)
		if err != nil {
			return nil, nil, nil, err
		}
		if rec == nil {
			failed = append(failed, id)
			continue
		}

		assetType := normalizeType(recordAitype(rec))
		ok, err := d.upload.ConvertAsset(ctx, rec, assetType)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			failed = append(failed, id)
			continue
		}
		success = append(success, id)
		types[id] = assetType
	}
	return success, failed, types, nil
}

func (d *Driver) convertFailedCreated(ctx context.Context) (phaseResult, error) {
	ids, err := d.ledger.FailedCreated()
	if err != nil {
		return phaseResult{}, err
	}
	success, failed, types, err := d.retryFailed(ctx, ids)
	if err != nil {
		return phaseResult{}, err
	}
	if err := d.ledger.UpdateCreated(success, failed, types); err != nil {
		return phaseResult{}, err
	}
	return phaseResult{success: len(success), failed: len(failed)}, nil
}

func (d *Driver) convertFailedModified(ctx context.Context) (phaseResult, error) {
	ids, err := d.ledger.FailedModified()
	if err != nil {
		return phaseResult{}, err
	}
	success, failed, types, err := d.retryFailed(ctx, ids)
	if err != nil {
		return phaseResult{}, err
	}
	if err := d.ledger.UpdateModified(success, failed, types); err != nil {
		return phaseResult{}, err
	}
	return phaseResult{success: len(success), failed: len(failed)}, nil
}

// checkDeletion looks up every previously-succeeded asset by id; any that no
// longer exist on the source are deleted from the destination too. The
// asset type needed to address the destination endpoint comes from the
// ledger's remembered type for id, not from the (now possibly empty) source
// record -- the original re-derives it from the just-fetched, possibly
// empty record, which panics on a real deletion.
func (d *Driver) checkDeletion(ctx context.Context) (phaseResult, error) {
	ids, err := d.ledger.SuccessCreated()
	if err != nil {
		return phaseResult{}, err
	}

	var removed []string
	for _, id := range ids {
		rec, err := d.source.GetByID(ctx, id)
		if err != nil {
			return phaseResult{}, err
		}
		if rec != nil {
			continue
		}

		assetType, known, err := d.ledger.AssetType(id)
		if err != nil {
			return phaseResult{}, err
		}
		if !known {
			d.log.WithField("asset_id", id).Warn("asset disappeared from source but no remembered type, skipping deletion")
			continue
		}

		ok, err := d.upload.DeleteAsset(ctx, d.platform.Name(), id, assetType)
		if err != nil {
			return phaseResult{}, err
		}
		if ok {
			removed = append(removed, id)
		}
	}

	if err := d.ledger.UpdateRemoved(removed); err != nil {
		return phaseResult{}, err
	}
	return phaseResult{removed: len(removed)}, nil
}
