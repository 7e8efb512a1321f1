// Package seeds loads a small linked demo household for local development.
package seeds

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/profiles"
	"go.uber.org/zap"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "lumra-demo"

var demoElderly = profiles.ElderlySignup{
	Name:     "Kamala Rao",
	Age:      78,
	Gender:   "female",
	Phone:    "+91 98450 12345",
	Address:  "14 MG Road, Bengaluru",
	Medical:  "hypertension",
	Password: DemoPassword,
	Confirm:  DemoPassword,
}

var demoGuardian = profiles.GuardianSignup{
	Name:     "Arjun Rao",
	Email:    "arjun.rao@example.com",
	Phone:    "+91 98450 99999",
	Password: DemoPassword,
	Confirm:  DemoPassword,
	Relation: "son",
}

// demoFences are created around the elderly user's home.
var demoFences = []struct {
	Label  string
	Center geo.Point
	Radius float64
}{
	{"Home", geo.Point{Lat: 12.9716, Lon: 77.5946}, 100},
	{"Cubbon Park", geo.Point{Lat: 12.9763, Lon: 77.5929}, 400},
}

// Result holds the ids of the seeded household.
type Result struct {
	ElderlyID  string
	GuardianID string
	FenceIDs   []string
}

// SeedAll creates the demo household. It does nothing when the demo elderly
// user already exists.
func SeedAll(ctx context.Context, people *profiles.Service, fences *geofence.Service, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	elderly, err := people.SignupElderly(ctx, demoElderly)
	if errors.Is(err, profiles.ErrPhoneTaken) {
		logger.Warn("demo household exists, skipping")
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("seed elderly: %w", err)
	}

	guardian, err := people.SignupGuardian(ctx, demoGuardian)
	if err != nil {
		return Result{}, fmt.Errorf("seed guardian: %w", err)
	}

	req, err := people.SendRequest(ctx, guardian.ID, elderly.Phone)
	if err != nil {
		return Result{}, fmt.Errorf("seed link request: %w", err)
	}
	if _, err := people.AcceptRequest(ctx, elderly.ID, req.ID); err != nil {
		return Result{}, fmt.Errorf("seed link: %w", err)
	}

	res := Result{ElderlyID: elderly.ID, GuardianID: guardian.ID}
	for _, f := range demoFences {
		fence, err := fences.Create(ctx, geofence.NewGeofence{
			ElderlyID:    elderly.ID,
			OwnerID:      guardian.ID,
			Label:        f.Label,
			Center:       f.Center,
			RadiusMeters: f.Radius,
		})
		if err != nil {
			return Result{}, fmt.Errorf("seed geofence %q: %w", f.Label, err)
		}
		res.FenceIDs = append(res.FenceIDs, fence.ID)
	}

	logger.Info("seeded demo household",
		zap.String("elderly_id", res.ElderlyID),
		zap.String("guardian_id", res.GuardianID),
		zap.Int("geofences", len(res.FenceIDs)))
	return res, nil
}
