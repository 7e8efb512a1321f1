package profiles

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) CreateElderly(ctx context.Context, e Elderly) error {
	err := s.db.WithContext(ctx).Create(&e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrPhoneTaken
	}
	return err
}

func (s *gormStore) GetElderly(ctx context.Context, id string) (Elderly, error) {
	var e Elderly
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Elderly{}, ErrNotFound
	}
	return e, err
}

func (s *gormStore) FindElderlyByPhone(ctx context.Context, phone string) (Elderly, error) {
	var e Elderly
	err := s.db.WithContext(ctx).First(&e, "phone = ?", phone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Elderly{}, ErrNotFound
	}
	return e, err
}

func (s *gormStore) ListElderliesOf(ctx context.Context, guardianID string) ([]Elderly, error) {
	out := []Elderly{}
	err := s.db.WithContext(ctx).
		Where("? = ANY(guardian_ids)", guardianID).
		Order("name ASC").
		Find(&out).Error
	return out, err
}

func (s *gormStore) CreateGuardian(ctx context.Context, g Guardian) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Guardian{}).
		Where("LOWER(email) = ?", strings.ToLower(g.Email)).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}
	err := s.db.WithContext(ctx).Create(&g).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Email was checked above, so the phone index tripped (or an email
		// raced in between).
		return ErrPhoneTaken
	}
	return err
}

func (s *gormStore) GetGuardian(ctx context.Context, id string) (Guardian, error) {
	var g Guardian
	err := s.db.WithContext(ctx).First(&g, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Guardian{}, ErrNotFound
	}
	return g, err
}

func (s *gormStore) CreateRequest(ctx context.Context, req LinkRequest) error {
	return s.db.WithContext(ctx).Create(&req).Error
}

func (s *gormStore) GetRequest(ctx context.Context, id string) (LinkRequest, error) {
	var req LinkRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LinkRequest{}, ErrRequestNotFound
	}
	return req, err
}

func (s *gormStore) ListRequests(ctx context.Context, elderlyID string, status RequestStatus) ([]LinkRequest, error) {
	out := []LinkRequest{}
	q := s.db.WithContext(ctx).Where("elderly_id = ?", elderlyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *gormStore) AnswerRequest(ctx context.Context, id string, status RequestStatus) (LinkRequest, error) {
	var req LinkRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&req, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if req.Status != StatusPending {
			return ErrRequestClosed
		}

		now := time.Now().UTC()
		if status == StatusAccepted {
			res := tx.Model(&Elderly{}).
				Where("id = ? AND NOT (? = ANY(COALESCE(guardian_ids, '{}')))", req.ElderlyID, req.GuardianID).
				Updates(map[string]any{
					"guardian_ids": gorm.Expr("array_append(guardian_ids, ?)", req.GuardianID),
					"updated_at":   now,
				})
			if res.Error != nil {
				return res.Error
			}
		}

		req.Status = status
		req.UpdatedAt = now
		return tx.Model(&LinkRequest{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": now}).Error
	})
	if err != nil {
		return LinkRequest{}, err
	}
	return req, nil
}
