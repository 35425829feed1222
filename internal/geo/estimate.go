package geo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Source tags where an estimate came from. Accuracy degrades in the order
// the constants are declared.
type Source string

const (
	SourceDevice  Source = "DEVICE"
	SourceNetwork Source = "NETWORK"
	SourceAddress Source = "ADDRESS"
	SourceManual  Source = "MANUAL"
)

// ParseSource maps a case-insensitive name ("device", "gps", "ip", ...) to a Source.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "device", "gps":
		return SourceDevice, nil
	case "network", "ip":
		return SourceNetwork, nil
	case "address":
		return SourceAddress, nil
	case "manual":
		return SourceManual, nil
	}
	return "", fmt.Errorf("unknown location source %q", s)
}

// Estimate is an immutable location fix. The zero value is not a valid
// estimate; build one with NewEstimate, which validates the coordinates.
type Estimate struct {
	lat, lon    float64
	accuracy    float64
	hasAccuracy bool
	source      Source
	label       string
}

// EstimateOption sets an optional field while an Estimate is being built.
type EstimateOption func(*Estimate)

// WithAccuracy records the radius of uncertainty reported by the source.
func WithAccuracy(meters float64) EstimateOption {
	return func(e *Estimate) {
		e.accuracy = meters
		e.hasAccuracy = true
	}
}

// WithLabel records a human-readable place name.
func WithLabel(label string) EstimateOption {
	return func(e *Estimate) { e.label = label }
}

// NewEstimate validates latRaw/lonRaw and returns a new estimate tagged with source.
func NewEstimate(latRaw, lonRaw any, source Source, opts ...EstimateOption) (Estimate, error) {
	lat, lon, err := Validate(latRaw, lonRaw)
	if err != nil {
		return Estimate{}, err
	}
	e := Estimate{lat: lat, lon: lon, source: source}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

func (e Estimate) Latitude() float64  { return e.lat }
func (e Estimate) Longitude() float64 { return e.lon }
func (e Estimate) Source() Source     { return e.source }

// DisplayLabel is only populated for ADDRESS estimates.
func (e Estimate) DisplayLabel() string { return e.label }

// Accuracy returns the reported uncertainty in meters and whether one was reported.
func (e Estimate) Accuracy() (float64, bool) { return e.accuracy, e.hasAccuracy }

// IsZero reports whether e was never built by NewEstimate.
func (e Estimate) IsZero() bool { return e.source == "" }

// Point returns the coordinate of the estimate.
func (e Estimate) Point() Point { return Point{Lat: e.lat, Lon: e.lon} }

// LowTrust reports whether the estimate's accuracy is worse than threshold
// meters. Estimates without an accuracy are never low-trust.
func (e Estimate) LowTrust(threshold float64) bool {
	return e.hasAccuracy && e.accuracy > threshold
}

func (e Estimate) String() string {
	s := fmt.Sprintf("%.6f, %.6f (%s", e.lat, e.lon, e.source)
	if e.hasAccuracy {
		s += fmt.Sprintf(" ±%.0fm", e.accuracy)
	}
	s += ")"
	if e.label != "" {
		s += " " + e.label
	}
	return s
}

// MarshalJSON renders the estimate for CLI output and logs.
func (e Estimate) MarshalJSON() ([]byte, error) {
	out := struct {
		Latitude       float64  `json:"latitude"`
		Longitude      float64  `json:"longitude"`
		AccuracyMeters *float64 `json:"accuracy_meters"`
		Source         Source   `json:"source"`
		DisplayLabel   string   `json:"display_label,omitempty"`
	}{
		Latitude:     e.lat,
		Longitude:    e.lon,
		Source:       e.source,
		DisplayLabel: e.label,
	}
	if e.hasAccuracy {
		acc := e.accuracy
		out.AccuracyMeters = &acc
	}
	return json.Marshal(out)
}
