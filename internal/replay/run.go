// Package replay runs a recorded fix sequence through an in-memory copy of
// the geofence engine. Operators use it to check how a fence set and a
// streak setting would have behaved on real traces.
package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/ingest"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/tracker"
	"go.uber.org/zap"
)

type Config struct {
	FencesPath     string
	FixesPath      string
	RequiredStreak int
}

// Report is the outcome of a replay. Events are in the order they were
// confirmed.
type Report struct {
	Fixes    int
	Accepted int
	Rejected []ingest.Rejection
	Stale    int
	Events   []events.TransitionEvent
	States   []tracker.State
}

// Run loads both files and replays the fixes.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (Report, error) {
	fences, err := LoadFences(cfg.FencesPath)
	if err != nil {
		return Report{}, err
	}
	fixes, err := ParseFixesFile(cfg.FixesPath)
	if err != nil {
		return Report{}, err
	}
	return Replay(ctx, fences, fixes, cfg.RequiredStreak, logger)
}

// Replay feeds fixes, sorted by observed_at, through a fresh engine that
// knows only fences. Nothing is delivered.
func Replay(ctx context.Context, fences []geofence.Geofence, fixes []location.Fix, streak int, logger *zap.Logger) (Report, error) {
	if streak < 1 {
		streak = config.DefaultRequiredStreak
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store := geofence.NewMemoryStore()
	elderly := map[string]bool{}
	for _, f := range fences {
		if err := store.Create(ctx, f); err != nil {
			return Report{}, fmt.Errorf("loading fence %s: %w", f.ID, err)
		}
		elderly[f.ElderlyID] = true
	}

	metrics := diagnostics.New()
	tr := tracker.New(tracker.NewMemoryStore(), streak, metrics, logger)
	engine := ingest.NewEngine(ingest.Deps{
		Fences:  geofence.NewService(store, nil, logger),
		Tracker: tr,
		History: location.NewMemoryHistory(),
		Events:  events.NewMemoryLog(),
		Metrics: metrics,
		Logger:  logger,
	})

	res, err := engine.IngestBatch(ctx, fixes)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		Fixes:    len(fixes),
		Accepted: res.Accepted,
		Rejected: res.Rejected,
		Stale:    res.Stale,
		Events:   res.Events,
	}
	for id := range elderly {
		states, err := tr.States(ctx, id)
		if err != nil {
			return Report{}, err
		}
		rep.States = append(rep.States, states...)
	}
	sort.Slice(rep.States, func(i, j int) bool {
		a, b := rep.States[i], rep.States[j]
		if a.ElderlyID != b.ElderlyID {
			return a.ElderlyID < b.ElderlyID
		}
		return a.GeofenceID < b.GeofenceID
	})
	return rep, nil
}
