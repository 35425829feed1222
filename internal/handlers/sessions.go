package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/Elizabethomito/geocheckin/internal/auth"
	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/middleware"
	"github.com/Elizabethomito/geocheckin/internal/models"
)

var errSessionNotFound = errors.New("session not found")

// loadSession reads a class session and its teacher's name.
func (s *Server) loadSession(ctx context.Context, id string) (*models.ClassSession, string, error) {
	var (
		sess        models.ClassSession
		teacherName string
		open        int
		openedAt    sql.NullTime
		qrExpiresAt sql.NullTime
		lat, lon    sql.NullFloat64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT cs.id, cs.teacher_id, cs.class_name, cs.starts_at,
		        cs.attendance_open, cs.method, cs.late_after_minutes, cs.opened_at,
		        cs.origin_lat, cs.origin_lon, cs.radius_meters, cs.qr_nonce, cs.qr_expires_at,
		        cs.created_at, cs.updated_at, u.name
		 FROM class_sessions cs JOIN users u ON u.id = cs.teacher_id
		 WHERE cs.id = ?`, id,
	).Scan(&sess.ID, &sess.TeacherID, &sess.ClassName, &sess.StartsAt,
		&open, &sess.Method, &sess.LateAfterMinutes, &openedAt,
		&lat, &lon, &sess.RadiusMeters, &sess.QRNonce, &qrExpiresAt,
		&sess.CreatedAt, &sess.UpdatedAt, &teacherName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", errSessionNotFound
		}
		return nil, "", err
	}

	sess.AttendanceOpen = open != 0
	if openedAt.Valid {
		sess.OpenedAt = &openedAt.Time
	}
	if qrExpiresAt.Valid {
		sess.QRExpiresAt = &qrExpiresAt.Time
	}
	if lat.Valid && lon.Valid {
		sess.OriginLat, sess.OriginLon = &lat.Float64, &lon.Float64
	}
	return &sess, teacherName, nil
}

// ownedSession loads the {id} session and checks the caller teaches it.
// On failure it has already written the response.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*models.ClassSession, bool) {
	sess, _, err := s.loadSession(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, errSessionNotFound):
		respondError(w, http.StatusNotFound, CodeNotFound, "session not found")
		return nil, false
	case err != nil:
		s.logger().Error("load session", "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return nil, false
	case sess.TeacherID != middleware.GetUserID(r.Context()):
		respondError(w, http.StatusForbidden, CodeForbidden, "you do not teach this session")
		return nil, false
	}
	return sess, true
}

func (s *Server) checkinURL(token string) string {
	return strings.TrimRight(s.FrontendURL, "/") + "/student/scan?token=" + url.QueryEscape(token)
}

// StartAttendance handles POST /api/sessions/{id}/attendance/start  (teacher only)
//
// Starting again while attendance is open issues a fresh QR and replaces
// the nonce, so the previous QR stops working. The late cutoff keeps
// counting from the first start.
func (s *Server) StartAttendance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	var req models.StartAttendanceRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON")
		return
	}
	if req.Method == "" {
		req.Method = "qr"
	}
	if req.LateAfterMinutes < 0 {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "late_after_minutes must not be negative")
		return
	}

	var origin *geo.Point
	if req.Latitude != nil || req.Longitude != nil {
		lat, lon, err := geo.Validate(req.Latitude, req.Longitude)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		if req.LocationRadius <= 0 {
			respondError(w, http.StatusBadRequest, CodeBadRequest, "location_radius must be positive")
			return
		}
		origin = &geo.Point{Lat: lat, Lon: lon}
	}

	ttl := s.QRTTL
	if ttl <= 0 {
		ttl = auth.DefaultQRTokenTTL
	}
	nonce := uuid.NewString()
	token, expiresAt, err := auth.GenerateQRToken(sess.ID, nonce, s.Secret, ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not generate QR token")
		return
	}

	var originLat, originLon *float64
	if origin != nil {
		originLat, originLon = &origin.Lat, &origin.Lon
	}
	now := s.now()
	_, err = s.DB.ExecContext(r.Context(),
		`UPDATE class_sessions
		 SET attendance_open = 1, method = ?, late_after_minutes = ?,
		     opened_at = COALESCE(opened_at, ?),
		     origin_lat = ?, origin_lon = ?, radius_meters = ?,
		     qr_nonce = ?, qr_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		req.Method, req.LateAfterMinutes, now,
		originLat, originLon, req.LocationRadius,
		nonce, expiresAt, now, sess.ID,
	)
	if err != nil {
		s.logger().Error("start attendance", "session", sess.ID, "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not start attendance")
		return
	}
	s.Metrics.qrIssued()
	s.logger().Info("attendance started", "session", sess.ID, "radius_m", req.LocationRadius,
		"has_origin", origin != nil, "expires_at", expiresAt)

	respondData(w, http.StatusCreated, "attendance started", models.StartAttendanceResponse{
		SessionID:        sess.ID,
		QRToken:          token,
		CheckinURL:       s.checkinURL(token),
		ExpiresAt:        expiresAt,
		TeacherLatitude:  originLat,
		TeacherLongitude: originLon,
		RadiusMeters:     req.LocationRadius,
	})
}

// CloseAttendance handles POST /api/sessions/{id}/attendance/close  (teacher only)
func (s *Server) CloseAttendance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	_, err := s.DB.ExecContext(r.Context(),
		`UPDATE class_sessions SET attendance_open = 0, qr_nonce = '', updated_at = ? WHERE id = ?`,
		s.now(), sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not close attendance")
		return
	}
	respondData(w, http.StatusOK, "attendance closed", nil)
}

// QRCode handles GET /api/sessions/{id}/attendance/qr.png  (teacher only)
//
// The PNG encodes the check-in link for the current QR token. An optional
// ?size= sets the edge in pixels (default 256).
func (s *Server) QRCode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if !sess.AttendanceOpen || sess.QRNonce == "" || sess.QRExpiresAt == nil || !s.now().Before(*sess.QRExpiresAt) {
		respondError(w, http.StatusConflict, CodeSessionInactive, "no live QR for this session; start attendance first")
		return
	}

	size := 256
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 2048 {
			respondError(w, http.StatusBadRequest, CodeBadRequest, "size must be between 64 and 2048")
			return
		}
		size = n
	}

	token, err := auth.GenerateQRTokenWithExpiry(sess.ID, sess.QRNonce, s.Secret, s.now(), *sess.QRExpiresAt)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not generate QR token")
		return
	}
	png, err := qrcode.Encode(s.checkinURL(token), qrcode.Medium, size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ListAttendance handles GET /api/sessions/{id}/attendance  (teacher only)
//
// ?pending=true limits the roster to check-ins still awaiting review.
func (s *Server) ListAttendance(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	query := `SELECT a.id, a.session_id, a.student_id, a.status, a.is_valid, a.checkin_time,
	                 a.latitude, a.longitude, a.distance_meters, a.no_gps_reason, u.name
	          FROM attendances a JOIN users u ON u.id = a.student_id
	          WHERE a.session_id = ?`
	if r.URL.Query().Get("pending") == "true" {
		query += ` AND a.is_valid IS NULL`
	}
	query += ` ORDER BY a.checkin_time ASC`

	rows, err := s.DB.QueryContext(r.Context(), query, sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	defer rows.Close()

	// Empty slice, not nil, so JSON encodes as [] rather than null.
	records := []models.AttendanceRecord{}
	for rows.Next() {
		var rec models.AttendanceRecord
		if err := scanAttendance(rows, &rec.Attendance, &rec.StudentName); err != nil {
			respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
			return
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	respondData(w, http.StatusOK, "", records)
}
