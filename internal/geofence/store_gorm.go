package geofence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Create(ctx context.Context, fence Geofence) error {
	return s.db.WithContext(ctx).Create(&fence).Error
}

func (s *gormStore) Get(ctx context.Context, id string) (Geofence, error) {
	var fence Geofence
	err := s.db.WithContext(ctx).First(&fence, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Geofence{}, ErrNotFound
	}
	return fence, err
}

// Update writes center and radius in a single UPDATE so readers never see a
// half-applied edit.
func (s *gormStore) Update(ctx context.Context, fence Geofence) error {
	res := s.db.WithContext(ctx).
		Model(&Geofence{}).
		Where("id = ? AND active = ?", fence.ID, true).
		Updates(map[string]any{
			"label":         fence.Label,
			"latitude":      fence.Latitude,
			"longitude":     fence.Longitude,
			"radius_meters": fence.RadiusMeters,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&Geofence{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) ListActive(ctx context.Context, elderlyID string) ([]Geofence, error) {
	fences := []Geofence{}
	err := s.db.WithContext(ctx).
		Where("elderly_id = ? AND active = ?", elderlyID, true).
		Find(&fences).Error
	return fences, err
}
