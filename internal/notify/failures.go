package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrFailureNotFound is returned when a delivery failure id is unknown.
var ErrFailureNotFound = errors.New("delivery failure not found")

// DeliveryFailure records a notification that exhausted its retries. The
// confirmed transition stays in place; this row only drives reconciliation.
type DeliveryFailure struct {
	ID         string         `gorm:"primaryKey" json:"id"`
	EventID    string         `gorm:"not null;index" json:"event_id"`
	GuardianID string         `gorm:"not null" json:"guardian_id"`
	Channel    string         `gorm:"not null" json:"channel"`
	Attempts   int            `gorm:"not null" json:"attempts"`
	LastError  string         `json:"last_error"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ResolvedAt *time.Time     `gorm:"index" json:"resolved_at,omitempty"`
}

func (DeliveryFailure) TableName() string { return "lumra.delivery_failures" }

// FailureStore persists delivery failures.
type FailureStore interface {
	Record(ctx context.Context, f DeliveryFailure) error
	Get(ctx context.Context, id string) (DeliveryFailure, error)
	// ListOpen returns unresolved failures, oldest first.
	ListOpen(ctx context.Context, limit int) ([]DeliveryFailure, error)
	// Touch adds attempts and replaces the last error after a failed retry.
	Touch(ctx context.Context, id string, attempts int, lastErr string) error
	Resolve(ctx context.Context, id string, at time.Time) error
}

type memoryFailures struct {
	mu   sync.RWMutex
	rows map[string]DeliveryFailure
}

func NewMemoryFailureStore() FailureStore {
	return &memoryFailures{rows: make(map[string]DeliveryFailure)}
}

func (s *memoryFailures) Record(_ context.Context, f DeliveryFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	if prev, ok := s.rows[f.ID]; ok {
		f.CreatedAt = prev.CreatedAt
	}
	s.rows[f.ID] = f
	return nil
}

func (s *memoryFailures) Get(_ context.Context, id string) (DeliveryFailure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.rows[id]
	if !ok {
		return DeliveryFailure{}, ErrFailureNotFound
	}
	return f, nil
}

func (s *memoryFailures) ListOpen(_ context.Context, limit int) ([]DeliveryFailure, error) {
	s.mu.RLock()
	out := []DeliveryFailure{}
	for _, f := range s.rows {
		if f.ResolvedAt == nil {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryFailures) Touch(_ context.Context, id string, attempts int, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok {
		return ErrFailureNotFound
	}
	f.Attempts += attempts
	f.LastError = lastErr
	f.UpdatedAt = time.Now().UTC()
	s.rows[id] = f
	return nil
}

func (s *memoryFailures) Resolve(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[id]
	if !ok {
		return ErrFailureNotFound
	}
	f.ResolvedAt = &at
	f.UpdatedAt = at
	s.rows[id] = f
	return nil
}

type gormFailures struct {
	db *gorm.DB
}

func NewGormFailureStore(db *gorm.DB) FailureStore {
	return &gormFailures{db: db}
}

// Record upserts on id, so a failure recorded again for the same event and
// guardian reopens the existing row.
func (s *gormFailures) Record(ctx context.Context, f DeliveryFailure) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"attempts", "last_error", "payload", "updated_at", "resolved_at",
			}),
		}).
		Create(&f).Error
}

func (s *gormFailures) Get(ctx context.Context, id string) (DeliveryFailure, error) {
	var f DeliveryFailure
	err := s.db.WithContext(ctx).First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DeliveryFailure{}, ErrFailureNotFound
	}
	return f, err
}

func (s *gormFailures) ListOpen(ctx context.Context, limit int) ([]DeliveryFailure, error) {
	out := []DeliveryFailure{}
	q := s.db.WithContext(ctx).Where("resolved_at IS NULL").Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (s *gormFailures) Touch(ctx context.Context, id string, attempts int, lastErr string) error {
	res := s.db.WithContext(ctx).
		Model(&DeliveryFailure{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + ?", attempts),
			"last_error": lastErr,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFailureNotFound
	}
	return nil
}

func (s *gormFailures) Resolve(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&DeliveryFailure{}).
		Where("id = ?", id).
		Updates(map[string]any{"resolved_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFailureNotFound
	}
	return nil
}
