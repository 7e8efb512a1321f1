package location

import (
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// DefaultHistoryLimit caps history queries that do not pass a limit.
const DefaultHistoryLimit = 50

// History is the append-only log of accepted fixes.
type History interface {
	// Append records an accepted fix.
	Append(ctx context.Context, fix Fix) error
	// Recent returns up to limit fixes for the elderly user, newest first.
	Recent(ctx context.Context, elderlyID string, limit int) ([]Fix, error)
}

type memoryHistory struct {
	mu    sync.RWMutex
	fixes map[string][]Fix
}

func NewMemoryHistory() History {
	return &memoryHistory{fixes: make(map[string][]Fix)}
}

func (h *memoryHistory) Append(_ context.Context, fix Fix) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fixes[fix.ElderlyID] = append(h.fixes[fix.ElderlyID], fix)
	return nil
}

func (h *memoryHistory) Recent(_ context.Context, elderlyID string, limit int) ([]Fix, error) {
	h.mu.RLock()
	all := h.fixes[elderlyID]
	out := make([]Fix, len(all))
	copy(out, all)
	h.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type gormHistory struct {
	db *gorm.DB
}

func NewGormHistory(db *gorm.DB) History {
	return &gormHistory{db: db}
}

func (h *gormHistory) Append(ctx context.Context, fix Fix) error {
	return h.db.WithContext(ctx).Create(&fix).Error
}

func (h *gormHistory) Recent(ctx context.Context, elderlyID string, limit int) ([]Fix, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var fixes []Fix
	err := h.db.WithContext(ctx).
		Where("elderly_id = ?", elderlyID).
		Order("observed_at DESC").
		Limit(limit).
		Find(&fixes).Error
	return fixes, err
}
