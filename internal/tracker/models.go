package tracker

import "time"

// PairKey identifies one (elderly, geofence) membership.
type PairKey struct {
	ElderlyID  string
	GeofenceID string
}

// State is the confirmed membership of one pair. Inside always reflects the
// most recently confirmed fix; ConfidenceStreak counts consecutive raw
// readings that disagree with it.
type State struct {
	ElderlyID        string    `gorm:"primaryKey" json:"elderly_id"`
	GeofenceID       string    `gorm:"primaryKey;index" json:"geofence_id"`
	Inside           bool      `gorm:"not null" json:"inside"`
	LastChangedAt    time.Time `gorm:"not null" json:"last_changed_at"`
	LastObservedAt   time.Time `gorm:"not null" json:"last_observed_at"`
	ConfidenceStreak int       `gorm:"not null;default:0" json:"confidence_streak"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (State) TableName() string { return "lumra.membership_states" }

// Key returns the pair the state belongs to.
func (s State) Key() PairKey {
	return PairKey{ElderlyID: s.ElderlyID, GeofenceID: s.GeofenceID}
}
