package geo

import (
	"errors"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon any
		reason   Reason // empty means success
	}{
		{"floats", 10.0, 20.0, ""},
		{"strings", " -1.2921 ", "36.8219", ""},
		{"ints", 90, -180, ""},
		{"boundaries", -90.0, 180.0, ""},
		{"lat too high", 91, 20, ReasonLatitudeOutOfRange},
		{"lat too low", -90.0001, 0, ReasonLatitudeOutOfRange},
		{"lon too high", 0, 180.5, ReasonLongitudeOutOfRange},
		{"both out of range reports latitude", 100, 200, ReasonLatitudeOutOfRange},
		{"garbage lat", "abc", 20, ReasonNotANumber},
		{"empty lon", 10, "", ReasonNotANumber},
		{"nan", math.NaN(), 0, ReasonNotANumber},
		{"inf", 0, math.Inf(1), ReasonNotANumber},
		{"nil", nil, 0, ReasonNotANumber},
		{"bool", true, 0, ReasonNotANumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Validate(tc.lat, tc.lon)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			var ice *InvalidCoordinateError
			if !errors.As(err, &ice) {
				t.Fatalf("expected InvalidCoordinateError, got %v", err)
			}
			if ice.Reason != tc.reason {
				t.Errorf("reason: got %q, want %q", ice.Reason, tc.reason)
			}
		})
	}
}

// Validate succeeds exactly when both values are in range.
func TestValidate_RangeProperty(t *testing.T) {
	for lat := -100.0; lat <= 100; lat += 2.5 {
		for lon := -200.0; lon <= 200; lon += 5 {
			inRange := lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
			gotLat, gotLon, err := Validate(lat, lon)
			if (err == nil) != inRange {
				t.Fatalf("Validate(%v, %v): err=%v, inRange=%v", lat, lon, err, inRange)
			}
			if err == nil && (gotLat != lat || gotLon != lon) {
				t.Fatalf("Validate(%v, %v) returned (%v, %v)", lat, lon, gotLat, gotLon)
			}
		}
	}
}

func TestNewEstimate(t *testing.T) {
	e, err := NewEstimate("10.5", 20, SourceAddress, WithAccuracy(50), WithLabel("Main Hall"))
	if err != nil {
		t.Fatalf("NewEstimate: %v", err)
	}
	if e.Latitude() != 10.5 || e.Longitude() != 20 {
		t.Errorf("coords: got %v,%v", e.Latitude(), e.Longitude())
	}
	if acc, ok := e.Accuracy(); !ok || acc != 50 {
		t.Errorf("accuracy: got %v,%v", acc, ok)
	}
	if e.DisplayLabel() != "Main Hall" {
		t.Errorf("label: got %q", e.DisplayLabel())
	}
	if e.LowTrust(500) {
		t.Error("50m estimate should not be low-trust")
	}

	if _, err := NewEstimate(91, 0, SourceManual); err == nil {
		t.Error("expected error for latitude 91")
	}
}

func TestEstimate_LowTrustWithoutAccuracy(t *testing.T) {
	e, err := NewEstimate(1, 1, SourceManual)
	if err != nil {
		t.Fatalf("NewEstimate: %v", err)
	}
	if _, ok := e.Accuracy(); ok {
		t.Error("manual estimate should have no accuracy")
	}
	if e.LowTrust(0) {
		t.Error("estimate without accuracy should never be low-trust")
	}
	if e.IsZero() {
		t.Error("built estimate reported as zero")
	}
	if !(Estimate{}).IsZero() {
		t.Error("zero value should report IsZero")
	}
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"gps": SourceDevice, "IP": SourceNetwork, " Address ": SourceAddress, "manual": SourceManual} {
		got, err := ParseSource(in)
		if err != nil || got != want {
			t.Errorf("ParseSource(%q): got %q, %v", in, got, err)
		}
	}
	if _, err := ParseSource("satellite"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(Point{10, 20}, Point{10, 20}); d != 0 {
		t.Errorf("same point: got %v", d)
	}
	// One degree of latitude is about 111.2 km.
	d := Distance(Point{0, 0}, Point{1, 0})
	if math.Abs(d-111195) > 50 {
		t.Errorf("one degree: got %v", d)
	}
}

func TestGeofence_Contains(t *testing.T) {
	fence := Geofence{Origin: Point{-1.2921, 36.8219}, RadiusMeters: 100}

	in, d := fence.Contains(Point{-1.2925, 36.8219})
	if !in {
		t.Errorf("expected inside, distance %v", d)
	}
	out, d := fence.Contains(Point{-1.3, 36.8219})
	if out {
		t.Errorf("expected outside, distance %v", d)
	}
}
