package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultListLimit caps event queries that do not pass a limit.
const DefaultListLimit = 50

// Log is the append-only record of emitted transition events.
type Log interface {
	// Append stores ev unless an event with the same id already exists.
	// It reports whether ev was newly stored; only new events are notified.
	Append(ctx context.Context, ev TransitionEvent) (bool, error)
	// Recent returns up to limit events for the elderly user, newest first.
	Recent(ctx context.Context, elderlyID string, limit int) ([]TransitionEvent, error)
	// Get returns an event by id.
	Get(ctx context.Context, id string) (TransitionEvent, bool, error)
}

type memoryLog struct {
	mu     sync.RWMutex
	byID   map[string]TransitionEvent
	events map[string][]TransitionEvent
}

func NewMemoryLog() Log {
	return &memoryLog{
		byID:   make(map[string]TransitionEvent),
		events: make(map[string][]TransitionEvent),
	}
}

func (l *memoryLog) Append(_ context.Context, ev TransitionEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.ID == "" {
		ev.ID = EventID(ev)
	}
	if _, ok := l.byID[ev.ID]; ok {
		return false, nil
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	l.byID[ev.ID] = ev
	l.events[ev.ElderlyID] = append(l.events[ev.ElderlyID], ev)
	return true, nil
}

func (l *memoryLog) Recent(_ context.Context, elderlyID string, limit int) ([]TransitionEvent, error) {
	l.mu.RLock()
	all := l.events[elderlyID]
	out := make([]TransitionEvent, len(all))
	copy(out, all)
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memoryLog) Get(_ context.Context, id string) (TransitionEvent, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.byID[id]
	return ev, ok, nil
}

type gormLog struct {
	db *gorm.DB
}

func NewGormLog(db *gorm.DB) Log {
	return &gormLog{db: db}
}

func (l *gormLog) Append(ctx context.Context, ev TransitionEvent) (bool, error) {
	if ev.ID == "" {
		ev.ID = EventID(ev)
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *gormLog) Recent(ctx context.Context, elderlyID string, limit int) ([]TransitionEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	out := []TransitionEvent{}
	err := l.db.WithContext(ctx).
		Where("elderly_id = ?", elderlyID).
		Order("at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (l *gormLog) Get(ctx context.Context, id string) (TransitionEvent, bool, error) {
	var ev TransitionEvent
	err := l.db.WithContext(ctx).First(&ev, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return TransitionEvent{}, false, nil
	}
	if err != nil {
		return TransitionEvent{}, false, err
	}
	return ev, true, nil
}
