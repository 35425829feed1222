// Package geo holds the coordinate primitives shared by the check-in client
// and the reference validation service: range validation, the immutable
// location estimate, and great-circle distance for geofences.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reason explains why a coordinate pair was rejected.
type Reason string

const (
	ReasonNotANumber          Reason = "NOT_A_NUMBER"
	ReasonLatitudeOutOfRange  Reason = "LATITUDE_OUT_OF_RANGE"
	ReasonLongitudeOutOfRange Reason = "LONGITUDE_OUT_OF_RANGE"
)

// InvalidCoordinateError is returned by Validate for malformed or
// out-of-range input. It is always recoverable locally: reject the input
// and ask again.
type InvalidCoordinateError struct {
	Reason Reason
	// Value is the raw input that failed, for messages.
	Value any
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate %v: %s", e.Value, e.Reason)
}

// Validate coerces latRaw and lonRaw to float64 and checks their ranges.
//
// Accepted inputs are strings (surrounding whitespace is ignored) and any Go
// numeric type. An empty string, NaN or ±Inf is NOT_A_NUMBER. Both values
// are parsed before any range check, and latitude is range-checked first.
func Validate(latRaw, lonRaw any) (lat, lon float64, err error) {
	lat, latOK := toFloat(latRaw)
	lon, lonOK := toFloat(lonRaw)
	if !latOK {
		return 0, 0, &InvalidCoordinateError{Reason: ReasonNotANumber, Value: latRaw}
	}
	if !lonOK {
		return 0, 0, &InvalidCoordinateError{Reason: ReasonNotANumber, Value: lonRaw}
	}
	if lat < -90 || lat > 90 {
		return 0, 0, &InvalidCoordinateError{Reason: ReasonLatitudeOutOfRange, Value: lat}
	}
	if lon < -180 || lon > 180 {
		return 0, 0, &InvalidCoordinateError{Reason: ReasonLongitudeOutOfRange, Value: lon}
	}
	return lat, lon, nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
