// Package locate acquires a location estimate from several independent
// sources and resolves them through an ordered fallback chain.
//
// Each source is an Adapter. Adapters never retry; the Resolver walks them
// in priority order and the first success wins:
//
//	device positioning → network (IP) estimation → forward geocoding → manual entry
package locate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// Adapter is one location acquisition strategy.
type Adapter interface {
	// Source is the provenance tag stamped on every estimate the adapter returns.
	Source() geo.Source
	// Acquire makes a single attempt and either returns a validated estimate
	// or a typed error.
	Acquire(ctx context.Context) (geo.Estimate, error)
}

var (
	// ErrPositioningUnavailable means the platform has no positioning capability.
	ErrPositioningUnavailable = errors.New("positioning unavailable")
	// ErrPositioningTimeout means no fix arrived within the adapter's timeout.
	ErrPositioningTimeout = errors.New("positioning timed out")
	// ErrPermissionDenied means the platform refused access to positioning.
	ErrPermissionDenied = errors.New("positioning permission denied")
	// ErrSourceNotConfigured is recorded when the resolve order names a
	// source the Resolver has no adapter for.
	ErrSourceNotConfigured = errors.New("location source not configured")
	// ErrManualDeclined is returned by a manual fallback callback when the
	// caller chooses not to enter a location.
	ErrManualDeclined = errors.New("manual location declined")
)

// NetworkLocationError is returned when both IP geolocation services failed.
type NetworkLocationError struct {
	Primary   error
	Alternate error
}

func (e *NetworkLocationError) Error() string {
	if e.Alternate == nil {
		return fmt.Sprintf("network location failed: %v", e.Primary)
	}
	return fmt.Sprintf("network location failed: primary: %v; alternate: %v", e.Primary, e.Alternate)
}

func (e *NetworkLocationError) Unwrap() []error {
	var errs []error
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Alternate != nil {
		errs = append(errs, e.Alternate)
	}
	return errs
}

// AddressNotFoundError is returned when forward geocoding produced no match.
// Err is set when the lookup itself failed rather than returning no results.
type AddressNotFoundError struct {
	Address string
	Err     error
}

func (e *AddressNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("address %q not found: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("address %q not found", e.Address)
}

func (e *AddressNotFoundError) Unwrap() error { return e.Err }

// SourceFailure records why one source did not produce an estimate.
type SourceFailure struct {
	Source geo.Source
	Err    error
}

// AllSourcesExhaustedError is returned by Resolve when no automated source
// produced an estimate and no manual estimate was supplied.
type AllSourcesExhaustedError struct {
	Attempts []SourceFailure
	// Manual is the manual fallback's error, or nil if none was offered.
	Manual error
}

func (e *AllSourcesExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts)+1)
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	if e.Manual != nil {
		parts = append(parts, fmt.Sprintf("%s: %v", geo.SourceManual, e.Manual))
	}
	if len(parts) == 0 {
		return "all location sources exhausted"
	}
	return "all location sources exhausted (" + strings.Join(parts, "; ") + ")"
}

func (e *AllSourcesExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	if e.Manual != nil {
		errs = append(errs, e.Manual)
	}
	return errs
}
