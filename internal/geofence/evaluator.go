package geofence

import (
	"github.com/lumra/lumra-backend/internal/geo"
	"github.com/lumra/lumra-backend/internal/location"
)

// Membership is the evaluator's verdict for one fix against one fence.
type Membership struct {
	Inside         bool    `json:"inside"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Evaluate reports whether fix lies inside fence. The fix accuracy is added
// to the radius, so an uncertain fix near the boundary counts as inside:
// a missed alert costs more than a spurious one.
//
// Evaluate has no side effects. Inputs must already be validated.
func Evaluate(fix location.Fix, fence Geofence) Membership {
	d := geo.DistanceMeters(fix.Point(), fence.Center())
	return Membership{
		Inside:         d <= fence.RadiusMeters+fix.AccuracyMeters,
		DistanceMeters: d,
	}
}
