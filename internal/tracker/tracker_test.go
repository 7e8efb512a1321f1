package tracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	bangalore = geo.Point{Lat: 12.9716, Lon: 77.5946}
	t0        = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
)

func testFence() geofence.Geofence {
	return geofence.Geofence{
		ID:           "fence-home",
		ElderlyID:    "elderly-1",
		Latitude:     bangalore.Lat,
		Longitude:    bangalore.Lon,
		RadiusMeters: 100,
		Active:       true,
	}
}

// fixAt places a fix distance meters east of the fence center.
func fixAt(distance, accuracy float64, at time.Time) location.Fix {
	p := geo.Offset(bangalore, 90, distance)
	return location.Fix{
		ElderlyID:      "elderly-1",
		Lat:            p.Lat,
		Lon:            p.Lon,
		AccuracyMeters: accuracy,
		ObservedAt:     at,
	}
}

func newTracker(t *testing.T, streak int) (*Tracker, *diagnostics.Metrics) {
	t.Helper()
	m := diagnostics.New()
	return New(NewMemoryStore(), streak, m, zap.NewNop()), m
}

func observe(t *testing.T, tr *Tracker, fix location.Fix) Outcome {
	t.Helper()
	out, err := tr.Observe(context.Background(), fix, testFence())
	require.NoError(t, err)
	return out
}

func TestObserve_FirstFixInitialisesWithoutEvent(t *testing.T) {
	tr, _ := newTracker(t, 2)

	out := observe(t, tr, fixAt(95, 10, t0))

	assert.Nil(t, out.Event)
	assert.True(t, out.State.Inside)
	assert.Equal(t, t0, out.State.LastChangedAt)
	assert.Equal(t, 0, out.State.ConfidenceStreak)
}

// Example from the product brief: 95m/10m is inside, then two fixes at
// 140m/5m confirm exactly one EXIT.
func TestObserve_ConfirmedExitEmitsOnce(t *testing.T) {
	tr, m := newTracker(t, 2)

	observe(t, tr, fixAt(95, 10, t0))

	first := observe(t, tr, fixAt(140, 5, t0.Add(time.Minute)))
	assert.Nil(t, first.Event)
	assert.True(t, first.State.Inside)
	assert.Equal(t, 1, first.State.ConfidenceStreak)

	second := observe(t, tr, fixAt(140, 5, t0.Add(2*time.Minute)))
	require.NotNil(t, second.Event)
	assert.Equal(t, events.KindExit, second.Event.Kind)
	assert.Equal(t, t0.Add(2*time.Minute), second.Event.At)
	assert.False(t, second.State.Inside)
	assert.Equal(t, 0, second.State.ConfidenceStreak)
	assert.Equal(t, second.Event.At, second.State.LastChangedAt)

	third := observe(t, tr, fixAt(140, 5, t0.Add(3*time.Minute)))
	assert.Nil(t, third.Event, "staying outside must not re-fire")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("EXIT")))
}

func TestObserve_SingleNoisyFixIsAbsorbed(t *testing.T) {
	tr, _ := newTracker(t, 2)

	observe(t, tr, fixAt(50, 5, t0))
	noisy := observe(t, tr, fixAt(300, 5, t0.Add(time.Minute)))
	back := observe(t, tr, fixAt(50, 5, t0.Add(2*time.Minute)))

	assert.Nil(t, noisy.Event)
	assert.Nil(t, back.Event)
	assert.True(t, back.State.Inside)
	assert.Equal(t, 0, back.State.ConfidenceStreak, "agreeing fix resets the streak")
	assert.Equal(t, t0, back.State.LastChangedAt)
}

func TestObserve_EnterAfterExit(t *testing.T) {
	tr, _ := newTracker(t, 2)

	observe(t, tr, fixAt(500, 5, t0))
	observe(t, tr, fixAt(20, 5, t0.Add(time.Minute)))
	out := observe(t, tr, fixAt(20, 5, t0.Add(2*time.Minute)))

	require.NotNil(t, out.Event)
	assert.Equal(t, events.KindEnter, out.Event.Kind)
	assert.True(t, out.State.Inside)
}

func TestObserve_StreakOfOneFlipsImmediately(t *testing.T) {
	tr, _ := newTracker(t, 1)

	observe(t, tr, fixAt(20, 5, t0))
	out := observe(t, tr, fixAt(500, 5, t0.Add(time.Minute)))

	require.NotNil(t, out.Event)
	assert.Equal(t, events.KindExit, out.Event.Kind)
}

func TestObserve_StaleFixNeverRewritesState(t *testing.T) {
	tr, m := newTracker(t, 2)
	ctx := context.Background()

	observe(t, tr, fixAt(20, 5, t0.Add(10*time.Minute)))
	before, _, err := tr.store.Get(ctx, PairKey{"elderly-1", "fence-home"})
	require.NoError(t, err)

	for _, at := range []time.Time{t0, t0.Add(10 * time.Minute)} {
		out, err := tr.Observe(ctx, fixAt(900, 5, at), testFence())
		assert.True(t, errors.Is(err, ErrStaleFix), "fix at %v: got %v", at, err)
		assert.Nil(t, out.Event)
	}

	after, _, err := tr.store.Get(ctx, PairKey{"elderly-1", "fence-home"})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleFixes))
}

func TestObserve_ReplayProducesSameStateAndEvents(t *testing.T) {
	seq := []location.Fix{
		fixAt(95, 10, t0),
		fixAt(140, 5, t0.Add(1*time.Minute)),
		fixAt(140, 5, t0.Add(2*time.Minute)),
		fixAt(30, 5, t0.Add(3*time.Minute)),
		fixAt(400, 5, t0.Add(4*time.Minute)),
		fixAt(30, 5, t0.Add(5*time.Minute)),
		fixAt(30, 5, t0.Add(6*time.Minute)),
	}

	run := func(tr *Tracker) map[string]events.TransitionEvent {
		got := map[string]events.TransitionEvent{}
		for _, f := range seq {
			out, err := tr.Observe(context.Background(), f, testFence())
			if err != nil {
				require.ErrorIs(t, err, ErrStaleFix)
				continue
			}
			if out.Event != nil {
				got[out.Event.ID] = *out.Event
			}
		}
		return got
	}

	fresh, _ := newTracker(t, 2)
	firstRun := run(fresh)
	require.Len(t, firstRun, 2, "one EXIT, one ENTER")

	other, _ := newTracker(t, 2)
	assert.Equal(t, firstRun, run(other), "independent replay yields the same event set")

	// Replaying into the same tracker is a no-op.
	stateBefore, _, _ := fresh.store.Get(context.Background(), PairKey{"elderly-1", "fence-home"})
	assert.Empty(t, run(fresh))
	stateAfter, _, _ := fresh.store.Get(context.Background(), PairKey{"elderly-1", "fence-home"})
	assert.Equal(t, stateBefore.Inside, stateAfter.Inside)
	assert.Equal(t, stateBefore.LastChangedAt, stateAfter.LastChangedAt)
	assert.Equal(t, stateBefore.ConfidenceStreak, stateAfter.ConfidenceStreak)
}

func TestObserve_ConcurrentPairsAreIndependent(t *testing.T) {
	tr, _ := newTracker(t, 2)
	ctx := context.Background()

	const elders = 20
	var wg sync.WaitGroup
	errs := make(chan error, elders)
	for i := 0; i < elders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fence := testFence()
			fence.ElderlyID = fmt.Sprintf("elderly-%d", i)
			for step, d := range []float64{10, 500, 500} {
				f := fixAt(d, 5, t0.Add(time.Duration(step)*time.Minute))
				f.ElderlyID = fence.ElderlyID
				if _, err := tr.Observe(ctx, f, fence); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < elders; i++ {
		states, err := tr.States(ctx, fmt.Sprintf("elderly-%d", i))
		require.NoError(t, err)
		require.Len(t, states, 1)
		assert.False(t, states[0].Inside)
	}
	assert.Equal(t, 0, tr.locks.size(), "pair locks are released")
}

// Many writers on one pair must not lose streak increments: exactly one
// EXIT is confirmed no matter how the goroutines interleave.
func TestObserve_SamePairSerialized(t *testing.T) {
	tr, _ := newTracker(t, 2)
	ctx := context.Background()
	observe(t, tr, fixAt(10, 5, t0))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		exits int
	)
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := tr.Observe(ctx, fixAt(600, 5, t0.Add(time.Duration(i)*time.Second)), testFence())
			if err != nil {
				return
			}
			if out.Event != nil {
				mu.Lock()
				exits++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Depending on arrival order the racers may have applied only one fix;
	// two later fixes settle the pair either way.
	for _, at := range []time.Duration{2 * time.Minute, 3 * time.Minute} {
		if out := observe(t, tr, fixAt(600, 5, t0.Add(at))); out.Event != nil {
			exits++
		}
	}

	assert.Equal(t, 1, exits)
	st, _, err := tr.store.Get(ctx, PairKey{"elderly-1", "fence-home"})
	require.NoError(t, err)
	assert.False(t, st.Inside)
}

func TestRelease_DropsFenceStates(t *testing.T) {
	tr, _ := newTracker(t, 2)
	observe(t, tr, fixAt(10, 5, t0))

	tr.Release(context.Background(), testFence())

	states, err := tr.States(context.Background(), "elderly-1")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "lumra.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tr := New(store, 2, nil, zap.NewNop())
	_, err = tr.Observe(ctx, fixAt(95, 10, t0), testFence())
	require.NoError(t, err)
	_, err = tr.Observe(ctx, fixAt(140, 5, t0.Add(time.Minute)), testFence())
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, PairKey{"elderly-1", "fence-home"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Inside)
	assert.Equal(t, 1, got.ConfidenceStreak)
	assert.True(t, got.LastChangedAt.Equal(t0))
	assert.True(t, got.LastObservedAt.Equal(t0.Add(time.Minute)))

	// Reopen: state survives.
	require.NoError(t, store.Close())
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	tr2 := New(reopened, 2, nil, zap.NewNop())
	out, err := tr2.Observe(ctx, fixAt(140, 5, t0.Add(2*time.Minute)), testFence())
	require.NoError(t, err)
	require.NotNil(t, out.Event)
	assert.Equal(t, events.KindExit, out.Event.Kind)

	require.NoError(t, reopened.DeleteGeofence(ctx, "fence-home"))
	states, err := reopened.List(ctx, "elderly-1")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestObserve_AfterReleaseWritesNothing(t *testing.T) {
	tr, _ := newTracker(t, 1)
	ctx := context.Background()
	observe(t, tr, fixAt(10, 5, t0))

	// The caller listed the fence while it was still active.
	listed := testFence()
	tr.Release(ctx, listed)

	out, err := tr.Observe(ctx, fixAt(900, 5, t0.Add(time.Minute)), listed)
	assert.ErrorIs(t, err, ErrFenceReleased)
	assert.Nil(t, out.Event)

	states, err := tr.States(ctx, "elderly-1")
	require.NoError(t, err)
	assert.Empty(t, states, "no orphan state after release")

	inactive := testFence()
	inactive.ID = "fence-park"
	inactive.Active = false
	_, err = tr.Observe(ctx, fixAt(10, 5, t0.Add(2*time.Minute)), inactive)
	assert.ErrorIs(t, err, ErrFenceReleased)
}
