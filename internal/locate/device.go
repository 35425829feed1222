package locate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// DefaultDeviceTimeout bounds a single device positioning request.
const DefaultDeviceTimeout = 15 * time.Second

// FixRequest describes the fix a Positioner is asked for.
type FixRequest struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is the oldest cached fix the positioner may return.
	// Zero means a fresh fix is required.
	MaximumAge time.Duration
}

// Fix is a raw reading from a positioning device.
type Fix struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the horizontal uncertainty in meters, nil if not reported.
	Accuracy *float64
	Time     time.Time
}

// Positioner is the platform's positioning capability.
type Positioner interface {
	CurrentPosition(ctx context.Context, req FixRequest) (Fix, error)
}

// DeviceAdapter acquires a single high-accuracy fix from a Positioner.
type DeviceAdapter struct {
	Positioner Positioner
	// Timeout defaults to DefaultDeviceTimeout.
	Timeout time.Duration
}

func (a *DeviceAdapter) Source() geo.Source { return geo.SourceDevice }

func (a *DeviceAdapter) Acquire(ctx context.Context) (geo.Estimate, error) {
	if a == nil || a.Positioner == nil {
		return geo.Estimate{}, ErrPositioningUnavailable
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultDeviceTimeout
	}

	fixCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fix, err := a.Positioner.CurrentPosition(fixCtx, FixRequest{
		HighAccuracy: true,
		Timeout:      timeout,
		MaximumAge:   0,
	})
	if err != nil {
		if ctx.Err() != nil {
			return geo.Estimate{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return geo.Estimate{}, fmt.Errorf("%w after %s", ErrPositioningTimeout, timeout)
		}
		return geo.Estimate{}, err
	}

	var opts []geo.EstimateOption
	if fix.Accuracy != nil {
		opts = append(opts, geo.WithAccuracy(*fix.Accuracy))
	}
	return geo.NewEstimate(fix.Latitude, fix.Longitude, geo.SourceDevice, opts...)
}

// StaticPositioner always reports the same coordinate. Fixed kiosks use it
// in place of a receiver.
type StaticPositioner struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

func (p StaticPositioner) CurrentPosition(ctx context.Context, _ FixRequest) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	return Fix{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  p.Accuracy,
		Time:      time.Now().UTC(),
	}, nil
}
