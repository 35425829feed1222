package models

import "time"

// UserRole defines the type of user account.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
)

// CheckinStatus is the punctuality of a recorded check-in.
type CheckinStatus string

const (
	CheckinOnTime CheckinStatus = "on_time"
	CheckinLate   CheckinStatus = "late"
)

// User represents both student and teacher accounts.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClassSession is one scheduled meeting of a class. Attendance is closed
// until its teacher starts it, which fixes the origin and radius and
// issues a QR token.
type ClassSession struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	ClassName string    `json:"class_name"`
	StartsAt  time.Time `json:"starts_at"`

	AttendanceOpen   bool       `json:"attendance_open"`
	Method           string     `json:"method,omitempty"`
	LateAfterMinutes int        `json:"late_after_minutes"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	// Origin is nil when the teacher opened attendance without a location.
	OriginLat    *float64   `json:"origin_latitude,omitempty"`
	OriginLon    *float64   `json:"origin_longitude,omitempty"`
	RadiusMeters float64    `json:"radius_meters"`
	QRNonce      string     `json:"-"`
	QRExpiresAt  *time.Time `json:"qr_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attendance is one student's check-in for one session.
type Attendance struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	StudentID      string        `json:"student_id"`
	Status         CheckinStatus `json:"status"`
	IsValid        *bool         `json:"is_valid"`
	CheckinTime    time.Time     `json:"checkin_time"`
	Latitude       *float64      `json:"latitude"`
	Longitude      *float64      `json:"longitude"`
	DistanceMeters *float64      `json:"distance_meters"`
	NoGPSReason    string        `json:"no_gps_reason,omitempty"`
}

// ---- Request / Response DTOs ----

// Envelope is the shape of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type StartAttendanceRequest struct {
	Method           string   `json:"method"`
	LateAfterMinutes int      `json:"late_after_minutes"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	LocationRadius   float64  `json:"location_radius"`
}

type StartAttendanceResponse struct {
	SessionID        string    `json:"session_id"`
	QRToken          string    `json:"qr_token"`
	CheckinURL       string    `json:"checkin_url"`
	ExpiresAt        time.Time `json:"expires_at"`
	TeacherLatitude  *float64  `json:"teacher_latitude,omitempty"`
	TeacherLongitude *float64  `json:"teacher_longitude,omitempty"`
	RadiusMeters     float64   `json:"radius_meters"`
}

// ScanRequest is what a student's device posts after scanning the QR.
// Latitude/Longitude and NoGPSReason are mutually exclusive.
type ScanRequest struct {
	Token       string   `json:"token"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	NoGPSReason string   `json:"no_gps_reason"`
}

type ClassInfo struct {
	SessionID   string `json:"session_id"`
	ClassName   string `json:"class_name"`
	TeacherName string `json:"teacher_name"`
}

type ScanResponse struct {
	Attendance
	ClassInfo ClassInfo `json:"class_info"`
}

type SetValidityRequest struct {
	IsValid *bool `json:"is_valid"`
}

// AttendanceRecord is an Attendance as the teacher's roster shows it.
type AttendanceRecord struct {
	Attendance
	StudentName string `json:"student_name"`
}

// Review is where a check-in stands with the teacher.
type Review string

const (
	ReviewValid   Review = "valid"
	ReviewInvalid Review = "invalid"
	ReviewPending Review = "pending"
)

// SessionSummary is one line of a user's timetable. Teachers get the
// roster counts, students get their own check-in.
type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	ClassName      string    `json:"class_name"`
	StartsAt       time.Time `json:"starts_at"`
	AttendanceOpen bool      `json:"attendance_open"`

	CheckedIn     int `json:"checked_in,omitempty"`
	PendingReview int `json:"pending_review,omitempty"`

	Status CheckinStatus `json:"status,omitempty"`
	Review Review        `json:"review,omitempty"`
}

// MeResponse is the signed-in user and their sessions.
type MeResponse struct {
	User
	Sessions []SessionSummary `json:"sessions"`
}
