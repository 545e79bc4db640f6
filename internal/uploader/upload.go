// Package uploader walks a translation graph depth-first, resolving
// references before the entity that needs them is POSTed, and heals
// "already exists" conflicts by merging onto the existing destination
// entity and PUTting the result.
package uploader

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/destination"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/obslog"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/translator"
)

// TypeEndpoints maps a translator's entity-key type segment (e.g.
// "organisation") to the destination's REST endpoint path segment.
type TypeEndpoints interface {
	Endpoint(translatorType string) (string, bool)
}

// MapTypeEndpoints is the simplest TypeEndpoints: a plain lookup table.
type MapTypeEndpoints map[string]string

func (m MapTypeEndpoints) Endpoint(translatorType string) (string, bool) {
	v, ok := m[translatorType]
	return v, ok
}

// Uploader uploads translation graphs to the destination client.
type Uploader struct {
	client *destination.Client
	trans  *translator.Translator
	types  TypeEndpoints
	log    *obslog.ContextLogger
}

// New builds an Uploader.
func New(client *destination.Client, trans *translator.Translator, types TypeEndpoints, log *obslog.ContextLogger) *Uploader {
	return &Uploader{client: client, trans: trans, types: types, log: log}
}

type session struct {
	visited map[string]bool
	failed  map[string]map[string]bool
}

// Upload uploads the subgraph reachable from rootKey, returning the root
// entity once every reachable reference has either resolved or been marked
// failed. The root's Fields carries an "identifier" key on success.
func (u *Uploader) Upload(ctx context.Context, graph translator.Graph, rootKey string) (*translator.Entity, error) {
	s := &session{visited: map[string]bool{}, failed: map[string]map[string]bool{}}
	return u.upload(ctx, graph, rootKey, s)
}

func entityTypeOf(entityKey string) string {
	parts := strings.Split(entityKey, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (u *Uploader) upload(ctx context.Context, graph translator.Graph, entityKey string, s *session) (*translator.Entity, error) {
	s.failed[entityKey] = map[string]bool{}

	entity, ok := graph[entityKey]
	if !ok {
		return nil, fmt.Errorf("uploader: unknown entity key %q", entityKey)
	}

	if s.visited[entityKey] {
		return entity, nil
	}
	s.visited[entityKey] = true

	for _, location := range append([]string{}, entity.RefOrder...) {
		subKey, ok := entity.Reference[location]
		if !ok {
			continue // already resolved by an earlier alias to the same key
		}
		subEntity := graph[subKey]
		if !s.visited[subKey] {
			var err error
			subEntity, err = u.upload(ctx, graph, subKey, s)
			if err != nil {
				return nil, err
			}
		}

		if id, ok := subEntity.Fields["identifier"]; ok {
			setAtLocation(entity.Fields, location, id)
			entity.DeleteReference(location)
		} else {
			s.failed[entityKey][location] = true
			break
		}
	}

	if len(s.failed[entityKey]) == 0 {
		delete(s.failed, entityKey)
		if err := u.postAndPut(ctx, entityKey, entity); err != nil {
			return nil, err
		}
	}

	return entity, nil
}

// setAtLocation stitches an upstream identifier into entity.Fields at the
// '/'-separated location. A dict step descends when already present, or is
// set directly at the final step; a list step overwrites an existing
// element, and appends when the index is at or past the end of the list, so
// identifiers land in index order only because RefOrder is processed in
// index order.
func setAtLocation(fields map[string]interface{}, location string, value interface{}) {
	assign(fields, strings.Split(location, "/"), value)
}

func assign(parent map[string]interface{}, segments []string, value interface{}) {
	key := segments[0]
	rest := segments[1:]
	if len(rest) == 0 {
		parent[key] = value
		return
	}

	switch child := parent[key].(type) {
	case map[string]interface{}:
		assign(child, rest, value)
	case []interface{}:
		idx, err := strconv.Atoi(rest[0])
		if err != nil {
			return
		}
		if len(rest) == 1 {
			if idx < len(child) {
				child[idx] = value
			} else {
				parent[key] = append(child, value)
			}
			return
		}
		if idx < len(child) {
			if m, ok := child[idx].(map[string]interface{}); ok {
				assign(m, rest[1:], value)
			}
		}
	}
}

var alreadyExistsIdentifier = regexp.MustCompile(`identifier=(\d+)`)

// postAndPut uploads entity and heals an "already exists" conflict by
// merging onto the existing destination entity and PUTting the result.
func (u *Uploader) postAndPut(ctx context.Context, entityKey string, entity *translator.Entity) error {
	translatorType := entityTypeOf(entityKey)
	aiodType, ok := u.types.Endpoint(translatorType)
	if !ok || aiodType == "" {
		u.log.WithField("type", translatorType).Warn("could not match type with a destination endpoint")
		return nil
	}

	payload := entity.Map()
	result, err := u.client.AddAsset(ctx, aiodType, payload)
	if err != nil {
		return err
	}

	if result.Success {
		entity.Fields["identifier"] = result.Value["identifier"]
		return nil
	}

	u.log.WithField("entity_key", entityKey).Info("could not upload entity")

	conflictID := ""
	for _, reason := range result.Reason {
		if strings.HasPrefix(reason, "There already exists") {
			if m := alreadyExistsIdentifier.FindStringSubmatch(reason); m != nil {
				conflictID = m[1]
			}
			break
		}
	}

	if conflictID == "" {
		for _, reason := range result.Reason {
			u.log.WithField("entity_key", entityKey).Info(reason)
		}
		return nil
	}

	u.log.WithFields(map[string]interface{}{
		"entity_key": entityKey,
		"identifier": conflictID,
	}).Info("entity already uploaded, resolving conflict")

	existing, err := u.client.GetAsset(ctx, aiodType, conflictID)
	if err != nil {
		return err
	}
	if !existing.Success {
		u.log.WithFields(map[string]interface{}{
			"entity_key": entityKey,
			"identifier": conflictID,
		}).Warn("could not fetch the conflicting entity")
		return nil
	}

	merged := Merge(payload, existing.Value)
	updated, err := u.client.UpdateAsset(ctx, aiodType, merged)
	if err != nil {
		return err
	}
	if updated.Success {
		entity.Fields["identifier"] = conflictID
	}
	return nil
}

// ConvertAsset translates a source record into assetType and uploads the
// resulting graph, reporting whether the root entity ended up with a
// destination identifier.
func (u *Uploader) ConvertAsset(ctx context.Context, record map[string]interface{}, assetType string) (bool, error) {
	graph, err := u.trans.Translate(record, assetType)
	if err != nil {
		return false, err
	}
	if len(graph) == 0 {
		u.log.WithField("asset_type", assetType).Warn("failed to translate asset")
		return false, nil
	}

	entity, err := u.Upload(ctx, graph, "/"+assetType)
	if err != nil {
		return false, err
	}
	if _, ok := entity.Fields["identifier"]; !ok {
		u.log.WithField("asset_type", assetType).Warn("failed to upload asset")
		return false, nil
	}
	return true, nil
}

// DeleteAsset removes the destination entity that corresponds to the given
// platform-native asset id, first resolving it via platformName.
func (u *Uploader) DeleteAsset(ctx context.Context, platformName, assetID, assetType string) (bool, error) {
	found, err := u.client.GetAssetFromPlatform(ctx, platformName, assetType, assetID)
	if err != nil {
		return false, err
	}
	if !found.Success {
		u.log.WithField("asset_id", assetID).Warn("could not find asset by platform on destination")
		for _, r := range found.Reason {
			u.log.Debug(r)
		}
		return false, nil
	}

	identifier := fmt.Sprintf("%v", found.Value["identifier"])
	result, err := u.client.DeleteAsset(ctx, assetType, identifier)
	if err != nil {
		return false, err
	}
	if !result.Success {
		u.log.WithFields(map[string]interface{}{
			"asset_id":   assetID,
			"identifier": identifier,
		}).Warn("could not delete asset from destination")
		for _, r := range result.Reason {
			u.log.Debug(r)
		}
	}
	return result.Success, nil
}

// CheckLogin ensures the destination client holds a valid session, logging
// in with accessToken (client-credentials OIDC if empty) when it does not.
func (u *Uploader) CheckLogin(ctx context.Context, accessToken string) (bool, error) {
	loggedIn, err := u.client.IsLoggedIn(ctx)
	if err != nil {
		return false, err
	}
	if loggedIn {
		return true, nil
	}

	u.log.Debug("not logged in to destination, logging in...")
	ok, err := u.client.Login(ctx, accessToken)
	if err != nil || !ok {
		u.log.Warn("could not login")
		return false, err
	}

	loggedIn, err = u.client.IsLoggedIn(ctx)
	if err != nil {
		return false, err
	}
	if !loggedIn {
		u.log.Warn("could not login")
		return false, nil
	}
	u.log.Debug("logged in to destination")
	return true, nil
}
