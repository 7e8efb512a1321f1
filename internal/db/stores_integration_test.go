package db_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lumra/lumra-backend/internal/app"
	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/notify"
	"github.com/lumra/lumra-backend/internal/profiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// databaseURL is empty when no database is configured; every test then skips.
var databaseURL string

func TestMain(m *testing.M) {
	// Load .env.local from the repository root (two directories up from internal/db/).
	_ = godotenv.Load("../../.env.local")
	databaseURL = os.Getenv(config.EnvDatabaseURL)
	os.Exit(m.Run())
}

func newPostgresApp(t *testing.T) *app.App {
	t.Helper()
	if databaseURL == "" {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	cfg := config.Default()
	cfg.Store = config.StorePostgres
	cfg.DatabaseURL = databaseURL
	cfg.Ingest.Burst = 100

	a, err := app.New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func uniquePhone() string {
	return fmt.Sprintf("9%010d", time.Now().UnixNano()%1e10)
}

func TestPostgres_LinkFenceAndTransition(t *testing.T) {
	a := newPostgresApp(t)
	ctx := context.Background()

	elderly, err := a.Profiles.SignupElderly(ctx, profiles.ElderlySignup{
		Name: "Integration Elder", Age: 80, Gender: "female", Phone: uniquePhone(),
		Address: "Test Street", Password: "secret1", Confirm: "secret1",
	})
	require.NoError(t, err)

	_, err = a.Profiles.SignupElderly(ctx, profiles.ElderlySignup{
		Name: "Duplicate", Age: 80, Gender: "female", Phone: elderly.Phone,
		Address: "Test Street", Password: "secret1", Confirm: "secret1",
	})
	assert.ErrorIs(t, err, profiles.ErrPhoneTaken)

	guardian, err := a.Profiles.SignupGuardian(ctx, profiles.GuardianSignup{
		Name: "Integration Guardian", Email: "it-" + uuid.NewString()[:8] + "@example.com",
		Phone: uniquePhone(), Password: "hunter22", Confirm: "hunter22",
	})
	require.NoError(t, err)

	req, err := a.Profiles.SendRequest(ctx, guardian.ID, elderly.Phone)
	require.NoError(t, err)
	_, err = a.Profiles.AcceptRequest(ctx, elderly.ID, req.ID)
	require.NoError(t, err)

	linked, err := a.Profiles.IsLinked(ctx, guardian.ID, elderly.ID)
	require.NoError(t, err)
	assert.True(t, linked)
	ids, err := a.Profiles.GuardiansOf(ctx, elderly.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{guardian.ID}, ids)

	home := geo.Point{Lat: 12.9716, Lon: 77.5946}
	fence, err := a.Fences.Create(ctx, geofence.NewGeofence{
		ElderlyID: elderly.ID, OwnerID: guardian.ID, Center: home, RadiusMeters: 100,
	})
	require.NoError(t, err)

	t0 := time.Now().UTC().Truncate(time.Second)
	for i, d := range []float64{10, 150, 150} {
		p := geo.Offset(home, 90, d)
		_, err := a.Engine.Ingest(ctx, location.Fix{
			ElderlyID: elderly.ID, Lat: p.Lat, Lon: p.Lon, AccuracyMeters: 5,
			ObservedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	evs, err := a.Engine.RecentEvents(ctx, elderly.ID, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindExit, evs[0].Kind)
	assert.Equal(t, fence.ID, evs[0].GeofenceID)

	states, err := a.Engine.Membership(ctx, elderly.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.False(t, states[0].Inside)

	fixes, err := a.Engine.RecentLocations(ctx, elderly.ID, 2)
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.True(t, fixes[0].ObservedAt.After(fixes[1].ObservedAt))

	require.NoError(t, a.Fences.Deactivate(ctx, fence.ID))
	states, err = a.Engine.Membership(ctx, elderly.ID)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestPostgres_FailureStore(t *testing.T) {
	a := newPostgresApp(t)
	ctx := context.Background()
	store := a.Notifier.Failures()

	f := notify.DeliveryFailure{
		ID:         uuid.NewString(),
		EventID:    uuid.NewString(),
		GuardianID: "g-it",
		Channel:    config.ChannelLog,
		Attempts:   5,
		LastError:  "gateway timeout",
		Payload:    datatypes.JSON(`{"kind":"EXIT"}`),
	}
	require.NoError(t, store.Record(ctx, f))
	require.NoError(t, store.Touch(ctx, f.ID, 2, "still down"))

	got, err := store.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Attempts)
	assert.Equal(t, "still down", got.LastError)
	assert.JSONEq(t, `{"kind":"EXIT"}`, string(got.Payload))

	require.NoError(t, store.Resolve(ctx, f.ID, time.Now()))
	open, err := store.ListOpen(ctx, 1000)
	require.NoError(t, err)
	for _, o := range open {
		assert.NotEqual(t, f.ID, o.ID)
	}

	_, err = store.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, notify.ErrFailureNotFound)
}
