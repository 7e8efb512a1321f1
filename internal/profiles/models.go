package profiles

import (
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPhoneTaken       = errors.New("phone number already registered")
	ErrEmailTaken       = errors.New("email already registered")
	ErrNotFound         = errors.New("profile not found")
	ErrRequestNotFound  = errors.New("link request not found")
	ErrRequestClosed    = errors.New("link request already answered")
	ErrAlreadyLinked    = errors.New("guardian already linked")
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

type Elderly struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	Age          int            `gorm:"not null" json:"age"`
	Gender       string         `gorm:"not null" json:"gender"`
	Phone        string         `gorm:"not null;uniqueIndex" json:"phone"`
	Address      string         `gorm:"not null" json:"address"`
	Medical      string         `json:"medical,omitempty"`
	PasswordHash string         `gorm:"not null" json:"-"`
	GuardianIDs  pq.StringArray `gorm:"type:text[]" json:"guardian_ids"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Elderly) TableName() string { return "lumra.elderlies" }

// HasGuardian reports whether guardianID is linked.
func (e Elderly) HasGuardian(guardianID string) bool {
	for _, g := range e.GuardianIDs {
		if g == guardianID {
			return true
		}
	}
	return false
}

type Guardian struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"not null;uniqueIndex" json:"email"`
	Phone        string    `gorm:"not null;uniqueIndex" json:"phone"`
	Address      string    `json:"address"`
	Relation     string    `json:"relation"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Guardian) TableName() string { return "lumra.guardians" }

// LinkRequest is a guardian's request to watch an elderly user. The elderly
// user accepts or rejects it.
type LinkRequest struct {
	ID         string        `gorm:"primaryKey" json:"id"`
	GuardianID string        `gorm:"not null;index" json:"guardian_id"`
	ElderlyID  string        `gorm:"not null;index" json:"elderly_id"`
	Status     RequestStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (LinkRequest) TableName() string { return "lumra.link_requests" }

// ElderlySummary is the row shown on the guardian dashboard.
type ElderlySummary struct {
	ElderlyID   string `json:"elderly_id"`
	ElderlyName string `json:"elderly_name"`
	Phone       string `json:"phone"`
}

// ElderlySignup is the elderly registration form.
type ElderlySignup struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Medical  string `json:"medical"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// GuardianSignup is the guardian registration form.
type GuardianSignup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
	Address  string `json:"address"`
	Relation string `json:"relation"`
}
