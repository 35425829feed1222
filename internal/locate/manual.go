package locate

import (
	"context"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// ManualAdapter passes operator-entered coordinates through the coordinate
// validator. Latitude and Longitude may be strings or numbers.
type ManualAdapter struct {
	Latitude  any
	Longitude any
}

func (a ManualAdapter) Source() geo.Source { return geo.SourceManual }

func (a ManualAdapter) Acquire(ctx context.Context) (geo.Estimate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Estimate{}, err
	}
	return Manual(a.Latitude, a.Longitude)
}

// Manual returns a MANUAL estimate with no accuracy, or an
// *geo.InvalidCoordinateError.
func Manual(lat, lon any) (geo.Estimate, error) {
	return geo.NewEstimate(lat, lon, geo.SourceManual)
}
