package geofence

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("geofence not found")
	ErrForbidden = errors.New("guardian is not linked to this elderly user")
)

// Store persists geofences. Implementations must make Update atomic: a
// concurrent Get or ListActive sees either the old or the new center/radius
// pair, never a mix.
type Store interface {
	Create(ctx context.Context, fence Geofence) error
	// Get returns a fence by id, active or not.
	Get(ctx context.Context, id string) (Geofence, error)
	// Update replaces label, center and radius of an active fence.
	Update(ctx context.Context, fence Geofence) error
	// Deactivate soft-deletes a fence. Deactivating twice is not an error.
	Deactivate(ctx context.Context, id string) error
	// ListActive returns the active fences of an elderly user in no particular order.
	ListActive(ctx context.Context, elderlyID string) ([]Geofence, error)
}
