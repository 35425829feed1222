package checkin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

var (
	// ErrMissingJustification is returned when no location is available and
	// the reason given is empty or whitespace. It never reaches the service.
	ErrMissingJustification = errors.New("a reason is required when no location is available")
	// ErrLocationAndJustification is returned when both a location and a
	// no-location reason are supplied.
	ErrLocationAndJustification = errors.New("location and no-location reason are mutually exclusive")
)

// Request is one check-in submission. Exactly one of Location and
// NoLocationJustification is set; build it with NewRequest.
type Request struct {
	Token                   string
	Location                *geo.Estimate
	NoLocationJustification string
}

// NewRequest builds a Request. loc may be nil only when justification holds
// a non-blank reason, which is stored trimmed.
func NewRequest(token string, loc *geo.Estimate, justification string) (Request, error) {
	if token == "" {
		return Request{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	reason := strings.TrimSpace(justification)

	if loc != nil && !loc.IsZero() {
		if reason != "" {
			return Request{}, ErrLocationAndJustification
		}
		est := *loc
		return Request{Token: token, Location: &est}, nil
	}

	if reason == "" {
		return Request{}, ErrMissingJustification
	}
	return Request{Token: token, NoLocationJustification: reason}, nil
}

// scanBody is the wire form of a Request.
type scanBody struct {
	Token       string   `json:"token"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	NoGPSReason string   `json:"no_gps_reason,omitempty"`
}

func (r Request) body() scanBody {
	b := scanBody{Token: r.Token, NoGPSReason: r.NoLocationJustification}
	if r.Location != nil {
		lat, lon := r.Location.Latitude(), r.Location.Longitude()
		b.Latitude, b.Longitude = &lat, &lon
	}
	return b
}

// Outcome is what the location resolver produced for an attempt: either
// an estimate or the error that ended resolution.
type Outcome struct {
	Estimate geo.Estimate
	Err      error
}

// Resolved wraps a successful estimate.
func Resolved(est geo.Estimate) Outcome { return Outcome{Estimate: est} }

// Failed wraps a resolution failure.
func Failed(err error) Outcome { return Outcome{Err: err} }

// OK reports whether the outcome carries a usable estimate.
func (o Outcome) OK() bool { return o.Err == nil && !o.Estimate.IsZero() }

// AttendanceStatus is the punctuality verdict for a check-in.
type AttendanceStatus string

const (
	StatusOnTime  AttendanceStatus = "ON_TIME"
	StatusLate    AttendanceStatus = "LATE"
	StatusAbsent  AttendanceStatus = "ABSENT"
	StatusUnknown AttendanceStatus = "UNKNOWN"
)

// parseStatus accepts the service's lowercase names; "present" is an
// alias of on-time. Anything else, including an empty status, is
// StatusUnknown rather than a guess.
func parseStatus(s string) AttendanceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on_time", "ontime", "present":
		return StatusOnTime
	case "late":
		return StatusLate
	case "absent":
		return StatusAbsent
	default:
		return StatusUnknown
	}
}

// Validity is the review state of a check-in. PENDING lasts until a
// teacher classifies it.
type Validity string

const (
	ValidityValid   Validity = "VALID"
	ValidityInvalid Validity = "INVALID"
	ValidityPending Validity = "PENDING"
)

func validityOf(isValid *bool) Validity {
	switch {
	case isValid == nil:
		return ValidityPending
	case *isValid:
		return ValidityValid
	default:
		return ValidityInvalid
	}
}

// ClassInfo identifies the session a check-in was recorded against.
type ClassInfo struct {
	SessionID   string `json:"session_id"`
	ClassName   string `json:"class_name"`
	TeacherName string `json:"teacher_name"`
}

// Result is the validation service's verdict, returned as received.
type Result struct {
	ID                       string
	Accepted                 bool
	Message                  string
	AttendanceStatus         AttendanceStatus
	Validity                 Validity
	CheckinTime              time.Time
	Latitude                 *float64
	Longitude                *float64
	DistanceFromOriginMeters *float64
	ClassInfo                ClassInfo
	NoGPSReason              string
}

type scanData struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	IsValid        *bool     `json:"is_valid"`
	CheckinTime    time.Time `json:"checkin_time"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	DistanceMeters *float64  `json:"distance_meters"`
	ClassInfo      ClassInfo `json:"class_info"`
	NoGPSReason    string    `json:"no_gps_reason"`
}

func (d scanData) result(message string) *Result {
	return &Result{
		ID:                       d.ID,
		Accepted:                 true,
		Message:                  message,
		AttendanceStatus:         parseStatus(d.Status),
		Validity:                 validityOf(d.IsValid),
		CheckinTime:              d.CheckinTime,
		Latitude:                 d.Latitude,
		Longitude:                d.Longitude,
		DistanceFromOriginMeters: d.DistanceMeters,
		ClassInfo:                d.ClassInfo,
		NoGPSReason:              d.NoGPSReason,
	}
}
