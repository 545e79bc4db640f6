// Package platform implements the publisher-platform identity check that
// must succeed before any asset upload: the destination needs a platform
// entity describing where the synced assets originate.
package platform

import (
	"context"
	"fmt"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/destination"
	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/obslog"
)

// Registrar holds the platform identity this run publishes assets under.
type Registrar struct {
	name       string
	identifier string
	client     *destination.Client
	log        *obslog.ContextLogger
}

// New builds a Registrar. name must not be empty; identifier is optional
// (zero value means "unknown yet").
func New(client *destination.Client, log *obslog.ContextLogger, name string, identifier string) (*Registrar, error) {
	if name == "" {
		return nil, fmt.Errorf("platform: name must not be empty")
	}
	return &Registrar{name: name, identifier: identifier, client: client, log: log}, nil
}

// Name returns the platform's name.
func (r *Registrar) Name() string { return r.name }

// Identifier returns the platform's destination identifier, populated once
// CheckPlatform has run successfully.
func (r *Registrar) Identifier() string { return r.identifier }

func (r *Registrar) toDict() map[string]interface{} {
	d := map[string]interface{}{"name": r.name}
	if r.identifier != "" {
		d["identifier"] = r.identifier
	}
	return d
}

// CheckPlatform ensures the platform exists on the destination, updating it
// in place if its identifier is already known but its name has drifted, or
// registering it fresh otherwise.
//
// Open Question (preserved, not resolved): when no identifier is known yet,
// this never looks the platform up by name first -- it always attempts to
// add a new one. If the destination enforces no uniqueness constraint on
// platform names, re-running the bridge with a forgotten/reset identifier
// can create duplicate platform entities with the same name. The original
// implementation has this same gap; it is preserved here rather than
// guessed at.
func (r *Registrar) CheckPlatform(ctx context.Context) (bool, error) {
	r.log.Debug("checking the platform on the destination")

	if r.identifier != "" {
		existing, err := r.client.GetPlatform(ctx, r.identifier)
		if err != nil {
			return false, err
		}
		if existing != nil {
			if existing["name"] == r.name {
				return true, nil
			}
			updated, err := r.client.UpdatePlatform(ctx, r.toDict())
			if err != nil {
				return false, err
			}
			return updated != nil, nil
		}
	}

	r.log.WithField("platform_name", r.name).Info("registering platform on the destination")
	id, err := r.client.AddPlatform(ctx, r.toDict())
	if err != nil {
		return false, err
	}
	if id == "" {
		r.log.WithField("platform_name", r.name).Debug("could not register platform")
		return false, nil
	}

	r.identifier = id
	r.log.WithFields(map[string]interface{}{
		"platform_name":       r.name,
		"platform_identifier": r.identifier,
	}).Debug("added platform")
	return true, nil
}
