package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the direction of a confirmed membership transition.
type Kind string

const (
	KindEnter Kind = "ENTER"
	KindExit  Kind = "EXIT"
)

// namespace seeds the deterministic event ids. It must never change, or
// replays would stop deduplicating against already stored events.
var namespace = uuid.MustParse("6f1c7a52-4d0e-4b7a-9d43-1f0c5e2b8a11")

// TransitionEvent is a confirmed ENTER or EXIT of an elderly user for one
// geofence. Events are immutable once emitted.
type TransitionEvent struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	ElderlyID      string    `gorm:"not null;index:idx_event_elderly_at,priority:1" json:"elderly_id"`
	GeofenceID     string    `gorm:"not null;index" json:"geofence_id"`
	Kind           Kind      `gorm:"type:varchar(8);not null" json:"kind"`
	At             time.Time `gorm:"not null;index:idx_event_elderly_at,priority:2" json:"at"`
	DistanceMeters float64   `json:"distance_meters"`
	CreatedAt      time.Time `json:"created_at"`
}

func (TransitionEvent) TableName() string { return "lumra.transition_events" }

// Key is the idempotency key (geofence_id, elderly_id, kind, last_changed_at).
// The tracker sets last_changed_at to the event time on every flip, so At
// stands in for it.
func (e TransitionEvent) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s",
		e.GeofenceID, e.ElderlyID, e.Kind, e.At.UTC().Format(time.RFC3339Nano))
}

// EventID derives the stable id of an event from its idempotency key.
func EventID(e TransitionEvent) string {
	return uuid.NewSHA1(namespace, []byte("event:"+e.Key())).String()
}

// New builds an event with its deterministic id filled in.
func New(elderlyID, geofenceID string, kind Kind, at time.Time, distance float64) TransitionEvent {
	e := TransitionEvent{
		ElderlyID:      elderlyID,
		GeofenceID:     geofenceID,
		Kind:           kind,
		At:             at.UTC(),
		DistanceMeters: distance,
	}
	e.ID = EventID(e)
	return e
}
