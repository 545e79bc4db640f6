// Package source builds source-API search queries and wraps the one HTTP
// endpoint those queries are posted against.
package source

import (
	"encoding/json"
	"strings"
)

const (
	sentinelGT      = "GT_TIMESTAMP"
	sentinelLTE     = "LTE_TIMESTAMP"
	sentinelAssetID = "ASSET_ID"
)

// Templates overrides one or more of the default query templates. Nil fields
// fall back to the built-in ES-bool templates.
type Templates struct {
	Created map[string]interface{}
	Changed map[string]interface{}
	ByID    map[string]interface{}
}

func defaultTemplates() Templates {
	filterTerm := func(field, value string) map[string]interface{} {
		return map[string]interface{}{"term": map[string]interface{}{field: value}}
	}
	rangeFilter := func(field string) map[string]interface{} {
		return map[string]interface{}{
			"range": map[string]interface{}{
				field: map[string]interface{}{"gt": sentinelGT, "lte": sentinelLTE},
			},
		}
	}
	byTimestamp := func(field string) map[string]interface{} {
		return map[string]interface{}{
			"query": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"filter": []interface{}{
							filterTerm("_index", "aiasset"),
							rangeFilter(field),
						},
					},
				},
			},
		}
	}

	return Templates{
		Created: byTimestamp("properties.created"),
		Changed: byTimestamp("properties.changed"),
		ByID: map[string]interface{}{
			"query": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"filter": []interface{}{filterTerm("_id", sentinelAssetID)},
					},
				},
			},
		},
	}
}

// Queries renders the three parameterized search queries the Catalog Sync
// driver needs. Templates are serialized once at construction time; Created,
// Modified and ByID do literal sentinel substitution on those bytes, never a
// re-marshal, so field ordering stays stable across calls.
type Queries struct {
	created  string
	modified string
	byID     string
}

// NewQueries builds a Queries from tpl, falling back to the built-in ES
// templates for any field left as nil.
func NewQueries(tpl Templates) (*Queries, error) {
	defaults := defaultTemplates()
	if tpl.Created == nil {
		tpl.Created = defaults.Created
	}
	if tpl.Changed == nil {
		tpl.Changed = defaults.Changed
	}
	if tpl.ByID == nil {
		tpl.ByID = defaults.ByID
	}

	created, err := json.Marshal(tpl.Created)
	if err != nil {
		return nil, err
	}
	modified, err := json.Marshal(tpl.Changed)
	if err != nil {
		return nil, err
	}
	byID, err := json.Marshal(tpl.ByID)
	if err != nil {
		return nil, err
	}

	return &Queries{created: string(created), modified: string(modified), byID: string(byID)}, nil
}

// Default builds a Queries using the built-in ES-bool templates.
func Default() *Queries {
	q, _ := NewQueries(Templates{})
	return q
}

func replaceAll(s string, pairs ...string) string {
	for i := 0; i+1 < len(pairs); i += 2 {
		s = strings.ReplaceAll(s, pairs[i], pairs[i+1])
	}
	return s
}

// Created renders the "records created in (gt, lte]" query.
func (q *Queries) Created(gtTimestamp, lteTimestamp string) string {
	return replaceAll(q.created, sentinelGT, gtTimestamp, sentinelLTE, lteTimestamp)
}

// Modified renders the "records changed in (gt, lte]" query.
func (q *Queries) Modified(gtTimestamp, lteTimestamp string) string {
	return replaceAll(q.modified, sentinelGT, gtTimestamp, sentinelLTE, lteTimestamp)
}

// ByID renders the "record with this id" query.
func (q *Queries) ByID(assetID string) string {
	return replaceAll(q.byID, sentinelAssetID, assetID)
}
