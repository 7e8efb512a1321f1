package location

import (
	"fmt"
	"math"
	"time"

	"github.com/lumra/lumra-backend/internal/geo"
)

// Fix is a single reported device position. Fixes are append-only and never
// mutated after ingest.
type Fix struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ElderlyID      string    `gorm:"not null;index:idx_fix_elderly_time,priority:1" json:"elderly_id"`
	Lat            float64   `gorm:"not null" json:"lat"`
	Lon            float64   `gorm:"not null" json:"lon"`
	AccuracyMeters float64   `gorm:"not null;default:0" json:"accuracy_meters"`
	ObservedAt     time.Time `gorm:"not null;index:idx_fix_elderly_time,priority:2" json:"observed_at"`
	ReceivedAt     time.Time `json:"received_at"`
}

func (Fix) TableName() string { return "lumra.position_fixes" }

// Point returns the fix coordinate.
func (f Fix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lon: f.Lon}
}

// Validate enforces the ingest contract: a known elderly id, valid
// coordinates, a finite non-negative accuracy and a timestamp.
// Fixes that fail here never reach the evaluator.
func (f Fix) Validate() error {
	if f.ElderlyID == "" {
		return fmt.Errorf("%w: elderly_id is required", geo.ErrInvalidGeometry)
	}
	if err := f.Point().Validate(); err != nil {
		return err
	}
	if math.IsNaN(f.AccuracyMeters) || math.IsInf(f.AccuracyMeters, 0) || f.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy must be a finite value >= 0, got %v", geo.ErrInvalidGeometry, f.AccuracyMeters)
	}
	if f.ObservedAt.IsZero() {
		return fmt.Errorf("%w: observed_at is required", geo.ErrInvalidGeometry)
	}
	return nil
}
