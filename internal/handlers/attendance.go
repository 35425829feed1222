package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/geocheckin/internal/auth"
	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/middleware"
	"github.com/Elizabethomito/geocheckin/internal/models"
)

// Outcome labels for checkins_total besides the rejection codes.
const (
	outcomeAccepted      = "accepted"
	outcomePendingReview = "pending_review"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAttendance reads the attendance columns in the order ListAttendance
// and SetValidity select them, plus any extra trailing columns.
func scanAttendance(row rowScanner, a *models.Attendance, extra ...any) error {
	var (
		isValid       sql.NullBool
		lat, lon, dst sql.NullFloat64
	)
	dest := []any{&a.ID, &a.SessionID, &a.StudentID, &a.Status, &isValid, &a.CheckinTime,
		&lat, &lon, &dst, &a.NoGPSReason}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if isValid.Valid {
		a.IsValid = &isValid.Bool
	}
	if lat.Valid && lon.Valid {
		a.Latitude, a.Longitude = &lat.Float64, &lon.Float64
	}
	if dst.Valid {
		a.DistanceMeters = &dst.Float64
	}
	return nil
}

// reject answers a scan with a rejection and counts it.
func (s *Server) reject(w http.ResponseWriter, status int, code, msg string) {
	s.Metrics.checkin(code)
	respondError(w, status, code, msg)
}

// Scan handles POST /api/attendance/scan  (student only)
//
// Checks run in a fixed order and the first failure wins:
//
//	token signature / expiry   400 invalid_token, 410 token_expired
//	session open, QR current   409 session_inactive, 410 token_expired
//	not yet checked in         409 already_checked_in
//	location or reason given   400 location_required
//	inside the geofence        403 out_of_radius
//
// A check-in with a location is valid immediately. One with only a reason
// is stored with is_valid NULL until the teacher reviews it.
func (s *Server) Scan(w http.ResponseWriter, r *http.Request) {
	studentID := middleware.GetUserID(r.Context())

	var req models.ScanRequest
	if err := decode(r, &req); err != nil {
		s.reject(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON")
		return
	}

	claims, err := auth.ParseQRToken(strings.TrimSpace(req.Token), s.Secret)
	switch {
	case errors.Is(err, auth.ErrQRExpired):
		s.reject(w, http.StatusGone, CodeTokenExpired, "this QR code has expired; scan the one on screen now")
		return
	case err != nil:
		s.reject(w, http.StatusBadRequest, CodeInvalidToken, "invalid token")
		return
	}

	sess, teacherName, err := s.loadSession(r.Context(), claims.SessionID)
	if errors.Is(err, errSessionNotFound) {
		s.reject(w, http.StatusBadRequest, CodeInvalidToken, "invalid token")
		return
	}
	if err != nil {
		s.logger().Error("load session", "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	if !sess.AttendanceOpen {
		s.reject(w, http.StatusConflict, CodeSessionInactive, "attendance for this session is not active")
		return
	}
	if claims.Nonce != sess.QRNonce {
		s.reject(w, http.StatusGone, CodeTokenExpired, "this QR code has been replaced; scan the one on screen now")
		return
	}

	var exists int
	err = s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM attendances WHERE session_id = ? AND student_id = ?`,
		sess.ID, studentID).Scan(&exists)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	if exists > 0 {
		s.reject(w, http.StatusConflict, CodeAlreadyCheckedIn, "you have already checked in to this session")
		return
	}

	now := s.now()
	att := models.Attendance{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		StudentID:   studentID,
		Status:      checkinStatus(sess, now),
		CheckinTime: now,
	}

	hasLocation := req.Latitude != nil || req.Longitude != nil
	reason := strings.TrimSpace(req.NoGPSReason)
	switch {
	case hasLocation && reason != "":
		s.reject(w, http.StatusBadRequest, CodeBadRequest, "send a location or a reason, not both")
		return

	case hasLocation:
		lat, lon, err := geo.Validate(req.Latitude, req.Longitude)
		if err != nil {
			s.reject(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		att.Latitude, att.Longitude = &lat, &lon
		if sess.OriginLat != nil && sess.OriginLon != nil {
			fence := geo.Geofence{
				Origin:       geo.Point{Lat: *sess.OriginLat, Lon: *sess.OriginLon},
				RadiusMeters: sess.RadiusMeters,
			}
			inside, d := fence.Contains(geo.Point{Lat: lat, Lon: lon})
			if !inside {
				s.reject(w, http.StatusForbidden, CodeOutOfRadius,
					fmt.Sprintf("you are %.0f m from the class; the limit is %.0f m", d, sess.RadiusMeters))
				return
			}
			att.DistanceMeters = &d
		}
		valid := true
		att.IsValid = &valid

	case reason != "":
		att.NoGPSReason = reason

	default:
		s.reject(w, http.StatusBadRequest, CodeLocationRequired, "a location or a reason for not sending one is required")
		return
	}

	_, err = s.DB.ExecContext(r.Context(),
		`INSERT INTO attendances
		 (id, session_id, student_id, status, is_valid, checkin_time, latitude, longitude, distance_meters, no_gps_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.SessionID, att.StudentID, att.Status, att.IsValid, att.CheckinTime,
		att.Latitude, att.Longitude, att.DistanceMeters, att.NoGPSReason,
	)
	if err != nil {
		// Two scans from the same student can race past the lookup above.
		if strings.Contains(err.Error(), "UNIQUE") {
			s.reject(w, http.StatusConflict, CodeAlreadyCheckedIn, "you have already checked in to this session")
			return
		}
		s.logger().Error("insert attendance", "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not record check-in")
		return
	}

	outcome, msg := outcomeAccepted, "checked in"
	if att.IsValid == nil {
		outcome, msg = outcomePendingReview, "checked in; waiting for your teacher to review the reason"
	}
	s.Metrics.checkin(outcome)
	s.logger().Info("check-in recorded", "session", sess.ID, "student", studentID,
		"status", att.Status, "outcome", outcome, "request_id", middleware.GetRequestID(r.Context()))

	respondData(w, http.StatusCreated, msg, models.ScanResponse{
		Attendance: att,
		ClassInfo: models.ClassInfo{
			SessionID:   sess.ID,
			ClassName:   sess.ClassName,
			TeacherName: teacherName,
		},
	})
}

// checkinStatus is on_time up to late_after_minutes after attendance was
// opened (or the session's start if it never was), late afterwards.
func checkinStatus(sess *models.ClassSession, at time.Time) models.CheckinStatus {
	from := sess.StartsAt
	if sess.OpenedAt != nil {
		from = *sess.OpenedAt
	}
	if at.After(from.Add(time.Duration(sess.LateAfterMinutes) * time.Minute)) {
		return models.CheckinLate
	}
	return models.CheckinOnTime
}

// SetValidity handles PATCH /api/attendance/{id}/validity  (teacher only)
//
// Only the teacher of the attendance's session may classify it.
func (s *Server) SetValidity(w http.ResponseWriter, r *http.Request) {
	teacherID := middleware.GetUserID(r.Context())
	attendanceID := r.PathValue("id")

	var req models.SetValidityRequest
	if err := decode(r, &req); err != nil || req.IsValid == nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "is_valid (true or false) is required")
		return
	}

	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE attendances SET is_valid = ?
		 WHERE id = ? AND session_id IN (SELECT id FROM class_sessions WHERE teacher_id = ?)`,
		*req.IsValid, attendanceID, teacherID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, CodeNotFound, "attendance not found")
		return
	}

	var att models.Attendance
	err = scanAttendance(s.DB.QueryRowContext(r.Context(),
		`SELECT id, session_id, student_id, status, is_valid, checkin_time,
		        latitude, longitude, distance_meters, no_gps_reason
		 FROM attendances WHERE id = ?`, attendanceID), &att)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	s.logger().Info("check-in reviewed", "attendance", att.ID, "is_valid", *req.IsValid)
	respondData(w, http.StatusOK, "validity updated", att)
}
