package geofence

import (
	"time"

	"github.com/lumra/lumra-backend/internal/geo"
)

// Geofence is a circular region around a point that a guardian watches for
// one elderly user. Deactivated fences stay in storage so past transition
// events remain interpretable.
type Geofence struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	ElderlyID    string    `gorm:"not null;index:idx_geofence_elderly_active,priority:1" json:"elderly_id"`
	OwnerID      string    `gorm:"index" json:"owner_id"`
	Label        string    `json:"label,omitempty"`
	Latitude     float64   `gorm:"not null" json:"latitude"`
	Longitude    float64   `gorm:"not null" json:"longitude"`
	RadiusMeters float64   `gorm:"not null" json:"radius_meters"`
	Active       bool      `gorm:"not null;index:idx_geofence_elderly_active,priority:2" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Geofence) TableName() string { return "lumra.geofences" }

// Center returns the fence center as a point.
func (g Geofence) Center() geo.Point {
	return geo.Point{Lat: g.Latitude, Lon: g.Longitude}
}

// Validate checks the fence geometry.
func (g Geofence) Validate() error {
	if err := g.Center().Validate(); err != nil {
		return err
	}
	return geo.ValidateRadius(g.RadiusMeters)
}

// NewGeofence is the input to Service.Create.
type NewGeofence struct {
	ElderlyID    string
	OwnerID      string
	Label        string
	Center       geo.Point
	RadiusMeters float64
}

// Change is the input to Service.Update. Center and radius are always
// replaced together.
type Change struct {
	Label        *string
	Center       geo.Point
	RadiusMeters float64
}
