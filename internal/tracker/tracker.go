package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/logging"
	"go.uber.org/zap"
)

// DefaultRequiredStreak is the number of consecutive disagreeing fixes that
// confirm a crossing.
const DefaultRequiredStreak = 2

// ErrStaleFix is returned for a fix that is not newer than the last fix
// already applied to the pair. Stale fixes never change state.
var ErrStaleFix = errors.New("stale fix")

// ErrFenceReleased is returned when the fence was deactivated after the
// caller listed it. No state is written and no event is emitted.
var ErrFenceReleased = errors.New("geofence released")

// Outcome is the result of applying one fix to one pair.
type Outcome struct {
	State      State
	Membership geofence.Membership
	// Event is set only when the fix confirmed a transition.
	Event *events.TransitionEvent
}

// Tracker owns every MembershipState. It is the only writer and holds the
// pair lock for the whole read-evaluate-write cycle.
type Tracker struct {
	store          StateStore
	requiredStreak int
	locks          *pairLocks
	metrics        *diagnostics.Metrics
	log            *zap.Logger
	now            func() time.Time

	// releaseMu is held shared by Observe and exclusively by Release, so a
	// state is never written for a fence once Release has started.
	releaseMu sync.RWMutex
	released  map[string]struct{}
}

func New(store StateStore, requiredStreak int, metrics *diagnostics.Metrics, logger *zap.Logger) *Tracker {
	if requiredStreak < 1 {
		requiredStreak = DefaultRequiredStreak
	}
	return &Tracker{
		store:          store,
		requiredStreak: requiredStreak,
		locks:          newPairLocks(),
		released:       make(map[string]struct{}),
		metrics:        metrics,
		log:            logging.Component(logger, "tracker"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RequiredStreak reports the configured debounce threshold.
func (t *Tracker) RequiredStreak() int { return t.requiredStreak }

// Observe applies fix to the (fix.ElderlyID, fence.ID) pair.
func (t *Tracker) Observe(ctx context.Context, fix location.Fix, fence geofence.Geofence) (Outcome, error) {
	key := PairKey{ElderlyID: fix.ElderlyID, GeofenceID: fence.ID}
	unlock := t.locks.lock(key)
	defer unlock()

	t.releaseMu.RLock()
	defer t.releaseMu.RUnlock()
	if _, gone := t.released[fence.ID]; gone || !fence.Active {
		return Outcome{}, ErrFenceReleased
	}

	current, exists, err := t.store.Get(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading membership state: %w", err)
	}

	if exists && isStale(current, fix.ObservedAt) {
		t.metrics.FixStale()
		t.log.Debug("stale fix ignored",
			zap.String("elderly_id", key.ElderlyID),
			zap.String("geofence_id", key.GeofenceID),
			zap.Time("observed_at", fix.ObservedAt),
			zap.Time("last_observed_at", current.LastObservedAt))
		return Outcome{State: current}, ErrStaleFix
	}

	m := geofence.Evaluate(fix, fence)

	from := phaseUnknown
	if exists {
		from = phaseOf(current.Inside)
	}
	r := transitions[transitionKey{from: from, raw: m.Inside}]

	next := current
	next.ElderlyID = key.ElderlyID
	next.GeofenceID = key.GeofenceID
	next.LastObservedAt = fix.ObservedAt.UTC()
	next.UpdatedAt = t.now()

	var ev *events.TransitionEvent
	switch r.action {
	case actAdopt:
		next.Inside = r.next == phaseInside
		next.LastChangedAt = fix.ObservedAt.UTC()
		next.ConfidenceStreak = 0
	case actHold:
		next.ConfidenceStreak = 0
	case actCount:
		next.ConfidenceStreak++
		if next.ConfidenceStreak >= t.requiredStreak {
			next.Inside = r.next == phaseInside
			next.LastChangedAt = fix.ObservedAt.UTC()
			next.ConfidenceStreak = 0
			e := events.New(key.ElderlyID, key.GeofenceID, r.emit, next.LastChangedAt, m.DistanceMeters)
			ev = &e
		}
	}

	if err := t.store.Put(ctx, next); err != nil {
		return Outcome{}, fmt.Errorf("saving membership state: %w", err)
	}

	if ev != nil {
		t.metrics.Transition(string(ev.Kind))
		t.log.Info("transition confirmed",
			zap.String("elderly_id", key.ElderlyID),
			zap.String("geofence_id", key.GeofenceID),
			zap.String("kind", string(ev.Kind)),
			zap.Float64("distance_m", m.DistanceMeters))
	}
	return Outcome{State: next, Membership: m, Event: ev}, nil
}

// States lists the membership states of an elderly user.
func (t *Tracker) States(ctx context.Context, elderlyID string) ([]State, error) {
	return t.store.List(ctx, elderlyID)
}

// Release drops the states of a deactivated fence. It is registered as a
// geofence deactivation hook.
func (t *Tracker) Release(ctx context.Context, fence geofence.Geofence) {
	t.releaseMu.Lock()
	defer t.releaseMu.Unlock()
	t.released[fence.ID] = struct{}{}
	if err := t.store.DeleteGeofence(ctx, fence.ID); err != nil {
		t.log.Warn("failed to release membership states",
			zap.String("geofence_id", fence.ID), zap.Error(err))
	}
}

// isStale rejects fixes older than the last confirmed change, and any fix
// that is not strictly newer than the last one applied. The second rule also
// turns a replayed or duplicated fix into a no-op.
func isStale(s State, observedAt time.Time) bool {
	if observedAt.Before(s.LastChangedAt) {
		return true
	}
	return !observedAt.After(s.LastObservedAt)
}
