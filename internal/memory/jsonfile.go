package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type jsonDoc struct {
	Latest struct {
		Created  string `json:"created"`
		Modified string `json:"modified"`
	} `json:"latest"`
	Created    []string          `json:"created"`
	Failed     jsonFailed        `json:"failed"`
	AssetTypes map[string]string `json:"asset_types"`
}

type jsonFailed struct {
	Created  []string `json:"created"`
	Modified []string `json:"modified"`
}

// jsonLedger is the "json:" backing: the entire document layout of
// spec.md §6.5, held in memory and rewritten whole on Save.
type jsonLedger struct {
	path            string
	timestampFormat string
	doc             jsonDoc
}

func openJSON(dsn string, timestampFormat string) (Ledger, error) {
	path := strings.TrimPrefix(dsn, "json:")
	tsFormat := timestampFormatOrDefault(timestampFormat)

	l := &jsonLedger{path: path, timestampFormat: tsFormat}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if dir := filepath.Dir(path); dir != "" {
			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				return nil, fmt.Errorf("memory: could not find memory directory for %q", path)
			}
		}
	} else {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &l.doc); err != nil {
				return nil, fmt.Errorf("memory: parsing %s: %w", path, err)
			}
		}
	}

	if l.doc.Latest.Created == "" {
		l.doc.Latest.Created = DefaultEpoch.Format(tsFormat)
	}
	if l.doc.Latest.Modified == "" {
		l.doc.Latest.Modified = DefaultEpoch.Format(tsFormat)
	}
	if l.doc.AssetTypes == nil {
		l.doc.AssetTypes = map[string]string{}
	}

	return l, nil
}

func (l *jsonLedger) LatestCreated() time.Time {
	t, _ := time.Parse(l.timestampFormat, l.doc.Latest.Created)
	return t
}

func (l *jsonLedger) SetLatestCreated(t time.Time) {
	l.doc.Latest.Created = t.Format(l.timestampFormat)
}

func (l *jsonLedger) LatestModified() time.Time {
	t, _ := time.Parse(l.timestampFormat, l.doc.Latest.Modified)
	return t
}

func (l *jsonLedger) SetLatestModified(t time.Time) {
	l.doc.Latest.Modified = t.Format(l.timestampFormat)
}

func (l *jsonLedger) SuccessCreated() ([]string, error) { return append([]string{}, l.doc.Created...), nil }
func (l *jsonLedger) FailedCreated() ([]string, error) {
	return append([]string{}, l.doc.Failed.Created...), nil
}
func (l *jsonLedger) FailedModified() ([]string, error) {
	return append([]string{}, l.doc.Failed.Modified...), nil
}

func (l *jsonLedger) AssetType(id string) (string, bool, error) {
	t, ok := l.doc.AssetTypes[id]
	return t, ok, nil
}

func setUnion(existing []string, add []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range add {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func setDifference(existing []string, remove []string) []string {
	removed := make(map[string]struct{}, len(remove))
	for _, id := range remove {
		removed[id] = struct{}{}
	}
	out := make([]string, 0, len(existing))
	for _, id := range existing {
		if _, ok := removed[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (l *jsonLedger) recordTypes(types map[string]string) {
	for id, t := range types {
		l.doc.AssetTypes[id] = t
	}
}

func (l *jsonLedger) UpdateCreated(success, failed []string, types map[string]string) error {
	l.doc.Failed.Created = reconcileFailed(l.doc.Failed.Created, success, failed)
	l.doc.Created = setUnion(l.doc.Created, success)
	sort.Strings(l.doc.Failed.Created)
	l.recordTypes(types)
	return nil
}

func (l *jsonLedger) UpdateModified(success, failed []string, types map[string]string) error {
	l.doc.Failed.Modified = reconcileFailed(l.doc.Failed.Modified, success, failed)
	l.doc.Created = setUnion(l.doc.Created, success)
	sort.Strings(l.doc.Failed.Modified)
	l.recordTypes(types)
	return nil
}

func (l *jsonLedger) UpdateRemoved(removed []string) error {
	l.doc.Created = setDifference(l.doc.Created, removed)
	l.doc.Failed.Created = setDifference(l.doc.Failed.Created, removed)
	l.doc.Failed.Modified = setDifference(l.doc.Failed.Modified, removed)
	for _, id := range removed {
		delete(l.doc.AssetTypes, id)
	}
	return nil
}

func (l *jsonLedger) Save() error {
	raw, err := json.MarshalIndent(l.doc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, raw, 0o644)
}

func (l *jsonLedger) Close() error { return nil }
