package ingest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/tracker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	home = geo.Point{Lat: 12.9716, Lon: 77.5946}
	t0   = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.TransitionEvent
	held   []events.TransitionEvent
}

func (n *recordingNotifier) Enqueue(ev events.TransitionEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return true
}

func (n *recordingNotifier) Hold(_ context.Context, ev events.TransitionEvent, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.held = append(n.held, ev)
}

func (n *recordingNotifier) heldCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.held)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(string) bool {
	d.n--
	return d.n >= 0
}

type fixture struct {
	engine   *Engine
	fences   *geofence.Service
	notifier *recordingNotifier
	log      events.Log
	metrics  *diagnostics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := diagnostics.New()
	fences := geofence.NewService(geofence.NewMemoryStore(), nil, zap.NewNop())
	tr := tracker.New(tracker.NewMemoryStore(), 2, m, zap.NewNop())
	fences.OnDeactivate(tr.Release)

	n := &recordingNotifier{}
	log := events.NewMemoryLog()
	eng := NewEngine(Deps{
		Fences:   fences,
		Tracker:  tr,
		History:  location.NewMemoryHistory(),
		Events:   log,
		Notifier: n,
		Metrics:  m,
		Logger:   zap.NewNop(),
	})
	return fixture{engine: eng, fences: fences, notifier: n, log: log, metrics: m}
}

func (f fixture) addFence(t *testing.T, elderlyID string, radius float64) geofence.Geofence {
	t.Helper()
	fence, err := f.fences.Create(context.Background(), geofence.NewGeofence{
		ElderlyID: elderlyID, Center: home, RadiusMeters: radius,
	})
	require.NoError(t, err)
	return fence
}

func fixAt(elderlyID string, distance, accuracy float64, at time.Time) location.Fix {
	p := geo.Offset(home, 90, distance)
	return location.Fix{ElderlyID: elderlyID, Lat: p.Lat, Lon: p.Lon, AccuracyMeters: accuracy, ObservedAt: at}
}

func TestIngest_ConfirmedExitNotifiedOnce(t *testing.T) {
	f := newFixture(t)
	fence := f.addFence(t, "e-1", 100)
	ctx := context.Background()

	res, err := f.engine.Ingest(ctx, fixAt("e-1", 95, 10, t0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Empty(t, res.Events)

	res, err = f.engine.Ingest(ctx, fixAt("e-1", 140, 5, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	res, err = f.engine.Ingest(ctx, fixAt("e-1", 140, 5, t0.Add(2*time.Minute)))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, events.KindExit, res.Events[0].Kind)
	assert.Equal(t, fence.ID, res.Events[0].GeofenceID)

	assert.Equal(t, 1, f.notifier.count())

	logged, err := f.engine.RecentEvents(ctx, "e-1", 10)
	require.NoError(t, err)
	assert.Len(t, logged, 1)

	fixes, err := f.engine.RecentLocations(ctx, "e-1", 10)
	require.NoError(t, err)
	assert.Len(t, fixes, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.FixesIngested))
}

func TestIngest_InvalidFixNeverReachesTracker(t *testing.T) {
	f := newFixture(t)
	f.addFence(t, "e-1", 100)
	ctx := context.Background()

	bad := []location.Fix{
		{ElderlyID: "e-1", Lat: 91, Lon: 0, ObservedAt: t0},
		{ElderlyID: "e-1", Lat: math.NaN(), Lon: 0, ObservedAt: t0},
		{ElderlyID: "e-1", Lat: 1, Lon: 1, AccuracyMeters: -1, ObservedAt: t0},
		{ElderlyID: "e-1", Lat: 1, Lon: 1},
		{Lat: 1, Lon: 1, ObservedAt: t0},
	}
	for _, fix := range bad {
		_, err := f.engine.Ingest(ctx, fix)
		assert.ErrorIs(t, err, geo.ErrInvalidGeometry)
	}

	states, err := f.engine.Membership(ctx, "e-1")
	require.NoError(t, err)
	assert.Empty(t, states)
	fixes, err := f.engine.RecentLocations(ctx, "e-1", 10)
	require.NoError(t, err)
	assert.Empty(t, fixes)
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.InvalidFixes))
}

func TestIngest_StaleFixIsCountedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.addFence(t, "e-1", 100)
	ctx := context.Background()

	_, err := f.engine.Ingest(ctx, fixAt("e-1", 10, 5, t0.Add(time.Hour)))
	require.NoError(t, err)

	res, err := f.engine.Ingest(ctx, fixAt("e-1", 900, 5, t0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stale)
	assert.Equal(t, 0, res.Evaluated)
}

func TestIngest_MultipleFences(t *testing.T) {
	f := newFixture(t)
	small := f.addFence(t, "e-1", 100)
	f.addFence(t, "e-1", 1000)
	f.addFence(t, "e-2", 100)
	ctx := context.Background()

	for i, d := range []float64{50, 300, 300} {
		_, err := f.engine.Ingest(ctx, fixAt("e-1", d, 5, t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	states, err := f.engine.Membership(ctx, "e-1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, st := range states {
		assert.Equal(t, st.GeofenceID != small.ID, st.Inside)
	}
	assert.Equal(t, 1, f.notifier.count(), "only the small fence was left")
}

func TestIngest_ReplayedEventIsNotNotifiedTwice(t *testing.T) {
	f := newFixture(t)
	fence := f.addFence(t, "e-1", 100)
	ev := events.New("e-1", fence.ID, events.KindExit, t0, 140)

	require.NoError(t, f.engine.publish(context.Background(), ev))
	require.NoError(t, f.engine.publish(context.Background(), ev))
	assert.Equal(t, 1, f.notifier.count())
}

func TestIngest_DeactivatedFenceIsIgnored(t *testing.T) {
	f := newFixture(t)
	fence := f.addFence(t, "e-1", 100)
	ctx := context.Background()

	_, err := f.engine.Ingest(ctx, fixAt("e-1", 10, 5, t0))
	require.NoError(t, err)
	require.NoError(t, f.fences.Deactivate(ctx, fence.ID))

	res, err := f.engine.Ingest(ctx, fixAt("e-1", 900, 5, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)

	states, err := f.engine.Membership(ctx, "e-1")
	require.NoError(t, err)
	assert.Empty(t, states, "state is released with the fence")
}

func TestIngest_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.addFence(t, "e-1", 100)
	f.engine.limiter = &denyAfter{n: 1}
	ctx := context.Background()

	_, err := f.engine.Ingest(ctx, fixAt("e-1", 10, 5, t0))
	require.NoError(t, err)
	_, err = f.engine.Ingest(ctx, fixAt("e-1", 10, 5, t0.Add(time.Second)))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RateLimitedFixes))
}

func TestIngestBatch_SortsAndReportsRejections(t *testing.T) {
	f := newFixture(t)
	f.addFence(t, "e-1", 100)
	f.engine.limiter = &denyAfter{n: 1}

	fixes := []location.Fix{
		fixAt("e-1", 140, 5, t0.Add(2*time.Minute)),
		{ElderlyID: "e-1", Lat: 200, Lon: 0, ObservedAt: t0},
		fixAt("e-1", 95, 10, t0),
		fixAt("e-1", 140, 5, t0.Add(time.Minute)),
	}
	res, err := f.engine.IngestBatch(context.Background(), fixes)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Accepted, "one rate-limit token covers the batch")
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 1, res.Rejected[0].Index)
	require.Len(t, res.Events, 1, "out-of-order submission still confirms the exit")
	assert.Equal(t, events.KindExit, res.Events[0].Kind)
	assert.Equal(t, t0.Add(2*time.Minute), res.Events[0].At)
}

// failingStates refuses to save state for one fence once armed.
type failingStates struct {
	tracker.StateStore
	mu      sync.Mutex
	fenceID string
	armed   bool
}

func (s *failingStates) arm(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = on
}

func (s *failingStates) Put(ctx context.Context, st tracker.State) error {
	s.mu.Lock()
	fail := s.armed && st.GeofenceID == s.fenceID
	s.mu.Unlock()
	if fail {
		return errors.New("db down")
	}
	return s.StateStore.Put(ctx, st)
}

// failingLog rejects every append.
type failingLog struct{ events.Log }

func (failingLog) Append(context.Context, events.TransitionEvent) (bool, error) {
	return false, errors.New("event log unavailable")
}

func TestIngest_FailingFenceKeepsSiblingTransition(t *testing.T) {
	m := diagnostics.New()
	fences := geofence.NewService(geofence.NewMemoryStore(), nil, zap.NewNop())
	states := &failingStates{StateStore: tracker.NewMemoryStore()}
	tr := tracker.New(states, 2, m, zap.NewNop())
	n := &recordingNotifier{}
	eng := NewEngine(Deps{
		Fences:   fences,
		Tracker:  tr,
		History:  location.NewMemoryHistory(),
		Events:   events.NewMemoryLog(),
		Notifier: n,
		Metrics:  m,
		Logger:   zap.NewNop(),
	})
	ctx := context.Background()

	small, err := fences.Create(ctx, geofence.NewGeofence{ElderlyID: "e-1", Center: home, RadiusMeters: 100})
	require.NoError(t, err)
	big, err := fences.Create(ctx, geofence.NewGeofence{ElderlyID: "e-1", Center: home, RadiusMeters: 1000})
	require.NoError(t, err)
	states.fenceID = big.ID

	_, err = eng.Ingest(ctx, fixAt("e-1", 50, 5, t0))
	require.NoError(t, err)
	_, err = eng.Ingest(ctx, fixAt("e-1", 300, 5, t0.Add(time.Minute)))
	require.NoError(t, err)

	states.arm(true)
	res, err := eng.Ingest(ctx, fixAt("e-1", 300, 5, t0.Add(2*time.Minute)))
	require.Error(t, err)
	assert.ErrorContains(t, err, "db down")
	require.Len(t, res.Events, 1)
	assert.Equal(t, small.ID, res.Events[0].GeofenceID)
	assert.Equal(t, 1, res.Evaluated)
	states.arm(false)

	for i := 3; i < 6; i++ {
		_, err := eng.Ingest(ctx, fixAt("e-1", 300, 5, t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	logged, err := eng.RecentEvents(ctx, "e-1", 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, events.KindExit, logged[0].Kind)
	assert.Equal(t, small.ID, logged[0].GeofenceID)
	assert.Equal(t, 1, n.count())
}

func TestIngest_UnloggedEventIsHeld(t *testing.T) {
	f := newFixture(t)
	f.addFence(t, "e-1", 100)
	f.engine.events = failingLog{events.NewMemoryLog()}
	ctx := context.Background()

	for i, d := range []float64{95, 140} {
		_, err := f.engine.Ingest(ctx, fixAt("e-1", d, 5, t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	res, err := f.engine.Ingest(ctx, fixAt("e-1", 140, 5, t0.Add(2*time.Minute)))
	assert.ErrorContains(t, err, "event log unavailable")
	require.Len(t, res.Events, 1)
	assert.Equal(t, 0, f.notifier.count())
	assert.Equal(t, 1, f.notifier.heldCount())
}

func TestIngest_FenceDeactivatedMidFlightLeavesNoState(t *testing.T) {
	f := newFixture(t)
	fence := f.addFence(t, "e-1", 100)
	ctx := context.Background()

	stale := staleLister{fences: []geofence.Geofence{fence}}
	f.engine.fences = stale
	require.NoError(t, f.fences.Deactivate(ctx, fence.ID))

	res, err := f.engine.Ingest(ctx, fixAt("e-1", 10, 5, t0))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Evaluated)
	assert.Equal(t, 0, res.Stale)

	states, err := f.engine.Membership(ctx, "e-1")
	require.NoError(t, err)
	assert.Empty(t, states)
}

// staleLister returns the fences it was built with, as a List call made
// before a deactivation would.
type staleLister struct{ fences []geofence.Geofence }

func (s staleLister) List(context.Context, string) ([]geofence.Geofence, error) {
	return s.fences, nil
}
