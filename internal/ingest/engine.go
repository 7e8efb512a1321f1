// Package ingest runs accepted position fixes through the geofence engine:
// validate, record, evaluate against every active fence, log confirmed
// transitions and hand new ones to the notifier.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/logging"
	"github.com/lumra/lumra-backend/internal/tracker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRateLimited is returned when an elderly device reports faster than the
// configured rate.
var ErrRateLimited = errors.New("fix rate limit exceeded")

// maxParallelFences bounds the per-fix fan-out.
const maxParallelFences = 8

// FenceLister returns the active fences of an elderly user.
type FenceLister interface {
	List(ctx context.Context, elderlyID string) ([]geofence.Geofence, error)
}

// Enqueuer accepts events for asynchronous delivery without blocking.
type Enqueuer interface {
	Enqueue(ev events.TransitionEvent) bool
	// Hold keeps an event that could not be logged so it is still delivered
	// on reconciliation.
	Hold(ctx context.Context, ev events.TransitionEvent, cause error)
}

// Limiter is a per-key token bucket.
type Limiter interface {
	Allow(key string) bool
}

type Deps struct {
	Fences   FenceLister
	Tracker  *tracker.Tracker
	History  location.History
	Events   events.Log
	Notifier Enqueuer
	// Limiter is optional; nil disables rate limiting.
	Limiter Limiter
	Metrics *diagnostics.Metrics
	Logger  *zap.Logger
}

type Engine struct {
	fences   FenceLister
	tracker  *tracker.Tracker
	history  location.History
	events   events.Log
	notifier Enqueuer
	limiter  Limiter
	metrics  *diagnostics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		fences:   d.Fences,
		tracker:  d.Tracker,
		history:  d.History,
		events:   d.Events,
		notifier: d.Notifier,
		limiter:  d.Limiter,
		metrics:  d.Metrics,
		log:      logging.Component(d.Logger, "ingest"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Result summarises one ingested fix.
type Result struct {
	FixID     string                   `json:"fix_id"`
	Evaluated int                      `json:"evaluated"`
	Stale     int                      `json:"stale"`
	Events    []events.TransitionEvent `json:"events"`
}

// Ingest validates fix and applies it to every active fence of its elderly
// user. Invalid fixes fail with geo.ErrInvalidGeometry before any state is
// touched. A fix that is stale for some pair is skipped for that pair only.
func (e *Engine) Ingest(ctx context.Context, fix location.Fix) (Result, error) {
	if err := fix.Validate(); err != nil {
		e.metrics.FixInvalid()
		return Result{}, err
	}
	if e.limiter != nil && !e.limiter.Allow(fix.ElderlyID) {
		e.metrics.FixRateLimited()
		return Result{}, ErrRateLimited
	}
	return e.apply(ctx, fix)
}

func (e *Engine) apply(ctx context.Context, fix location.Fix) (Result, error) {
	fix.ID = uuid.NewString()
	fix.ObservedAt = fix.ObservedAt.UTC()
	fix.ReceivedAt = e.now()
	e.metrics.FixIngested()

	if err := e.history.Append(ctx, fix); err != nil {
		return Result{}, fmt.Errorf("recording fix: %w", err)
	}

	fences, err := e.fences.List(ctx, fix.ElderlyID)
	if err != nil {
		return Result{}, fmt.Errorf("listing geofences: %w", err)
	}

	outcomes := make([]tracker.Outcome, len(fences))
	stale := make([]bool, len(fences))
	released := make([]bool, len(fences))
	errs := make([]error, len(fences))

	// One failing pair leaves the others running; their states may already
	// be saved.
	var g errgroup.Group
	g.SetLimit(maxParallelFences)
	for i, fence := range fences {
		g.Go(func() error {
			out, err := e.tracker.Observe(ctx, fix, fence)
			switch {
			case errors.Is(err, tracker.ErrStaleFix):
				stale[i] = true
			case errors.Is(err, tracker.ErrFenceReleased):
				released[i] = true
			case err != nil:
				errs[i] = fmt.Errorf("geofence %s: %w", fence.ID, err)
			default:
				outcomes[i] = out
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{FixID: fix.ID, Events: []events.TransitionEvent{}}
	for i := range fences {
		if stale[i] {
			res.Stale++
			continue
		}
		if released[i] || errs[i] != nil {
			continue
		}
		res.Evaluated++
		ev := outcomes[i].Event
		if ev == nil {
			continue
		}
		if err := e.publish(ctx, *ev); err != nil {
			errs = append(errs, err)
		}
		res.Events = append(res.Events, *ev)
	}
	return res, errors.Join(errs...)
}

// publish logs ev and enqueues it only when the log did not already hold it,
// so a replayed transition is never notified twice. An event the log could
// not take is held by the notifier for reconciliation.
func (e *Engine) publish(ctx context.Context, ev events.TransitionEvent) error {
	fresh, err := e.events.Append(ctx, ev)
	if err != nil {
		e.log.Error("failed to append transition event",
			zap.String("event_id", ev.ID),
			zap.String("event_key", ev.Key()),
			zap.Error(err))
		if e.notifier != nil {
			e.notifier.Hold(ctx, ev, err)
		}
		return fmt.Errorf("appending event %s: %w", ev.ID, err)
	}
	if !fresh {
		e.log.Debug("duplicate transition ignored", zap.String("event_id", ev.ID))
		return nil
	}
	if e.notifier != nil {
		e.notifier.Enqueue(ev)
	}
	return nil
}

// Rejection explains why one fix of a batch was not applied.
type Rejection struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult summarises a batch ingest.
type BatchResult struct {
	Accepted int                      `json:"accepted"`
	Rejected []Rejection              `json:"rejected"`
	Stale    int                      `json:"stale"`
	Events   []events.TransitionEvent `json:"events"`
}

// IngestBatch applies fixes in observed_at order. Invalid fixes are reported
// and skipped; the rate limit is charged once per elderly user per batch.
// Indexes in Rejected refer to the caller's order.
func (e *Engine) IngestBatch(ctx context.Context, fixes []location.Fix) (BatchResult, error) {
	order := make([]int, len(fixes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fixes[order[a]].ObservedAt.Before(fixes[order[b]].ObservedAt)
	})

	res := BatchResult{Rejected: []Rejection{}, Events: []events.TransitionEvent{}}
	limited := map[string]bool{}
	for _, idx := range order {
		fix := fixes[idx]
		if err := fix.Validate(); err != nil {
			e.metrics.FixInvalid()
			res.Rejected = append(res.Rejected, Rejection{Index: idx, Error: err.Error()})
			continue
		}

		allowed, seen := limited[fix.ElderlyID]
		if !seen {
			allowed = e.limiter == nil || e.limiter.Allow(fix.ElderlyID)
			limited[fix.ElderlyID] = allowed
		}
		if !allowed {
			e.metrics.FixRateLimited()
			res.Rejected = append(res.Rejected, Rejection{Index: idx, Error: ErrRateLimited.Error()})
			continue
		}

		out, err := e.apply(ctx, fix)
		res.Stale += out.Stale
		res.Events = append(res.Events, out.Events...)
		if err != nil {
			return res, err
		}
		res.Accepted++
	}
	sort.Slice(res.Rejected, func(a, b int) bool { return res.Rejected[a].Index < res.Rejected[b].Index })
	return res, nil
}

func (e *Engine) RecentLocations(ctx context.Context, elderlyID string, limit int) ([]location.Fix, error) {
	return e.history.Recent(ctx, elderlyID, limit)
}

func (e *Engine) RecentEvents(ctx context.Context, elderlyID string, limit int) ([]events.TransitionEvent, error) {
	return e.events.Recent(ctx, elderlyID, limit)
}

func (e *Engine) Membership(ctx context.Context, elderlyID string) ([]tracker.State, error) {
	return e.tracker.States(ctx, elderlyID)
}
