package tracker

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) StateStore {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, key PairKey) (State, bool, error) {
	var st State
	err := s.db.WithContext(ctx).
		First(&st, "elderly_id = ? AND geofence_id = ?", key.ElderlyID, key.GeofenceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *gormStore) Put(ctx context.Context, state State) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "elderly_id"}, {Name: "geofence_id"}},
			UpdateAll: true,
		}).
		Create(&state).Error
}

func (s *gormStore) List(ctx context.Context, elderlyID string) ([]State, error) {
	out := []State{}
	err := s.db.WithContext(ctx).Where("elderly_id = ?", elderlyID).Find(&out).Error
	return out, err
}

func (s *gormStore) DeleteGeofence(ctx context.Context, geofenceID string) error {
	return s.db.WithContext(ctx).Where("geofence_id = ?", geofenceID).Delete(&State{}).Error
}
