package location

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFix() Fix {
	return Fix{
		ElderlyID:      "elderly-1",
		Lat:            12.9716,
		Lon:            77.5946,
		AccuracyMeters: 10,
		ObservedAt:     time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFixValidate(t *testing.T) {
	require.NoError(t, validFix().Validate())

	tests := []struct {
		name   string
		mutate func(*Fix)
	}{
		{"missing elderly", func(f *Fix) { f.ElderlyID = "" }},
		{"latitude out of range", func(f *Fix) { f.Lat = 91 }},
		{"longitude out of range", func(f *Fix) { f.Lon = -180.1 }},
		{"negative accuracy", func(f *Fix) { f.AccuracyMeters = -1 }},
		{"nan accuracy", func(f *Fix) { f.AccuracyMeters = math.NaN() }},
		{"zero timestamp", func(f *Fix) { f.ObservedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFix()
			tt.mutate(&f)
			err := f.Validate()
			assert.True(t, errors.Is(err, geo.ErrInvalidGeometry), "got %v", err)
		})
	}
}

func TestMemoryHistory_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()

	base := validFix()
	for i := 0; i < 5; i++ {
		f := base
		f.ID = string(rune('a' + i))
		f.ObservedAt = base.ObservedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, h.Append(ctx, f))
	}
	other := base
	other.ElderlyID = "elderly-2"
	require.NoError(t, h.Append(ctx, other))

	got, err := h.Recent(ctx, "elderly-1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].ID)
	assert.Equal(t, "c", got[2].ID)

	all, err := h.Recent(ctx, "elderly-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
