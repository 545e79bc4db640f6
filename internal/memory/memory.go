// Package memory implements the bridge's durable sync ledger: high-water
// marks for the created/modified ingestion windows, the sets of asset ids
// known to exist on the destination and those still pending retry, and (a
// redesign over the original implementation) the last known asset type per
// id so the deletion-check phase never needs to re-derive it from a record
// that may no longer exist on the source.
package memory

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimestampFormat mirrors the original '%Y-%m-%dT%H:%M:%S.%fZ'.
const DefaultTimestampFormat = "2006-01-02T15:04:05.000Z"

// DefaultEpoch is the high-water mark a fresh ledger starts from.
var DefaultEpoch = time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC)

// Ledger is the durable state a Catalog Sync run reads and updates. The
// json backing keeps every mutation in memory until Save rewrites the file;
// the sqlite backing commits each mutator as it runs (one transaction per
// Update* call) and its Save is a no-op.
type Ledger interface {
	LatestCreated() time.Time
	SetLatestCreated(time.Time)
	LatestModified() time.Time
	SetLatestModified(time.Time)

	// SuccessCreated yields ids the bridge believes currently exist on the
	// destination (created-or-modified successfully at least once).
	SuccessCreated() ([]string, error)
	FailedCreated() ([]string, error)
	FailedModified() ([]string, error)

	// AssetType returns the last known normalized aitype for id, and
	// whether one was recorded.
	AssetType(id string) (string, bool, error)

	// UpdateCreated reconciles the created phase: ids in success move out
	// of the failed-to-create set and into the success set; ids in failed
	// are added to the failed-to-create set unless they are also in
	// success. types maps every id in success to its normalized aitype.
	UpdateCreated(success, failed []string, types map[string]string) error
	UpdateModified(success, failed []string, types map[string]string) error
	UpdateRemoved(removed []string) error

	Save() error
	Close() error
}

// Open dispatches on dsn's scheme ("sqlite:" or "json:") the same way the
// original memory_factory does.
func Open(dsn string, timestampFormat string) (Ledger, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return openSQLite(dsn, timestampFormat)
	case strings.HasPrefix(dsn, "json:"):
		return openJSON(dsn, timestampFormat)
	default:
		return nil, fmt.Errorf("memory: could not infer backing type from connection string %q", dsn)
	}
}

func timestampFormatOrDefault(f string) string {
	if f == "" {
		return DefaultTimestampFormat
	}
	return f
}

// reconcileFailed computes (previouslyFailed - success) + (newlyFailed -
// success) over a slice representation, so an id never ends up in both the
// success and the failed set of one update.
func reconcileFailed(previouslyFailed, success, newlyFailed []string) []string {
	succeeded := make(map[string]struct{}, len(success))
	for _, id := range success {
		succeeded[id] = struct{}{}
	}
	out := make(map[string]struct{}, len(previouslyFailed)+len(newlyFailed))
	for _, id := range previouslyFailed {
		if _, ok := succeeded[id]; !ok {
			out[id] = struct{}{}
		}
	}
	for _, id := range newlyFailed {
		if _, ok := succeeded[id]; !ok {
			out[id] = struct{}{}
		}
	}
	result := make([]string, 0, len(out))
	for id := range out {
		result = append(result, id)
	}
	return result
}
