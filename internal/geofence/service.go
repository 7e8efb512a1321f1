package geofence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/logging"
	"go.uber.org/zap"
)

// Linker answers whether a guardian may manage an elderly user's fences.
type Linker interface {
	IsLinked(ctx context.Context, guardianID, elderlyID string) (bool, error)
}

// DeactivateFunc is called after a fence has been soft-deleted.
type DeactivateFunc func(ctx context.Context, fence Geofence)

// Service wraps a Store with validation, ownership checks and hooks.
type Service struct {
	store  Store
	linker Linker
	log    *zap.Logger

	mu           sync.RWMutex
	onDeactivate []DeactivateFunc
}

func NewService(store Store, linker Linker, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		linker: linker,
		log:    logging.Component(logger, "geofence"),
	}
}

// OnDeactivate registers fn to run after every successful Deactivate.
func (s *Service) OnDeactivate(fn DeactivateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDeactivate = append(s.onDeactivate, fn)
}

// Authorize returns ErrForbidden unless guardianID is linked to elderlyID.
// A nil Linker allows everything; that is only used by offline tooling.
func (s *Service) Authorize(ctx context.Context, guardianID, elderlyID string) error {
	if s.linker == nil {
		return nil
	}
	ok, err := s.linker.IsLinked(ctx, guardianID, elderlyID)
	if err != nil {
		return fmt.Errorf("checking guardian link: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Create validates and stores a new active fence. Invalid geometry is
// rejected with geo.ErrInvalidGeometry and never stored.
func (s *Service) Create(ctx context.Context, in NewGeofence) (Geofence, error) {
	if in.ElderlyID == "" {
		return Geofence{}, fmt.Errorf("%w: elderly_id is required", geo.ErrInvalidGeometry)
	}
	now := time.Now().UTC()
	fence := Geofence{
		ID:           uuid.NewString(),
		ElderlyID:    in.ElderlyID,
		OwnerID:      in.OwnerID,
		Label:        in.Label,
		Latitude:     in.Center.Lat,
		Longitude:    in.Center.Lon,
		RadiusMeters: in.RadiusMeters,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := fence.Validate(); err != nil {
		return Geofence{}, err
	}
	if err := s.store.Create(ctx, fence); err != nil {
		return Geofence{}, fmt.Errorf("storing geofence: %w", err)
	}

	s.log.Info("geofence created",
		zap.String("geofence_id", fence.ID),
		zap.String("elderly_id", fence.ElderlyID),
		zap.Float64("radius_m", fence.RadiusMeters))
	return fence, nil
}

// Get returns a fence, active or not.
func (s *Service) Get(ctx context.Context, id string) (Geofence, error) {
	return s.store.Get(ctx, id)
}

// Update replaces the geometry of an active fence.
func (s *Service) Update(ctx context.Context, id string, change Change) (Geofence, error) {
	fence, err := s.store.Get(ctx, id)
	if err != nil {
		return Geofence{}, err
	}
	if !fence.Active {
		return Geofence{}, ErrNotFound
	}

	fence.Latitude = change.Center.Lat
	fence.Longitude = change.Center.Lon
	fence.RadiusMeters = change.RadiusMeters
	if change.Label != nil {
		fence.Label = *change.Label
	}
	if err := fence.Validate(); err != nil {
		return Geofence{}, err
	}
	if err := s.store.Update(ctx, fence); err != nil {
		return Geofence{}, err
	}

	s.log.Info("geofence updated",
		zap.String("geofence_id", fence.ID),
		zap.Float64("radius_m", fence.RadiusMeters))
	return s.store.Get(ctx, id)
}

// Deactivate soft-deletes a fence and runs the deactivation hooks.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	fence, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Deactivate(ctx, id); err != nil {
		return err
	}
	fence.Active = false

	s.mu.RLock()
	hooks := append([]DeactivateFunc(nil), s.onDeactivate...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, fence)
	}

	s.log.Info("geofence deactivated", zap.String("geofence_id", id))
	return nil
}

// List returns the active fences of an elderly user.
func (s *Service) List(ctx context.Context, elderlyID string) ([]Geofence, error) {
	return s.store.ListActive(ctx, elderlyID)
}
