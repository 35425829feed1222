package handlers

// SeedDemo handles POST /api/admin/seed
//
// Demo data only. Every row has a fixed id and goes in with INSERT OR
// IGNORE, so seeding twice is harmless.
//
// DEMO SCENARIO
// ─────────────────────────────────────────────────────────────────────────
// Teacher  : "Dr. Wanjiru Kamau"   (teacher@school.test / demo1234)
// Students : "Amara Osei"          (amara@student.test  / demo1234)
//            "Baraka Mwangi"       (baraka@student.test / demo1234)
//
// Sessions (both taught by Dr. Kamau):
//   1. Physics 101, started 10 minutes ago. Attendance is closed until
//      the teacher starts it from the classroom.
//   2. Chemistry 201, last week. Attendance already ran: Amara checked in
//      inside the fence, Baraka sent a reason that still needs review.

import (
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Pre-determined ids keep the seed idempotent across restarts.
const (
	SeedTeacherID = "seed-teacher-0000-0000-0000-000000000001"
	SeedAmaraID   = "seed-amara---0000-0000-0000-000000000002"
	SeedBarakaID  = "seed-baraka--0000-0000-0000-000000000003"

	SeedPhysicsSessionID   = "seed-session-physics-0000-000000000010"
	SeedChemistrySessionID = "seed-session-chem----0000-000000000011"

	SeedPassword = "demo1234"
)

// Demo origin: a lecture hall in Kisumu.
const (
	seedOriginLat = -0.0917
	seedOriginLon = 34.7680
)

// SeedDemo handles POST /api/admin/seed
func (s *Server) SeedDemo(w http.ResponseWriter, r *http.Request) {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "bcrypt: "+err.Error())
		return
	}
	pw := string(hash)
	now := s.now()
	ctx := r.Context()

	exec := func(query string, args ...any) bool {
		if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
			s.logger().Error("seed", "err", err)
			respondError(w, http.StatusInternalServerError, CodeInternal, "seed failed")
			return false
		}
		return true
	}

	// ── Users ────────────────────────────────────────────────────────────
	users := []struct{ id, email, name, role string }{
		{SeedTeacherID, "teacher@school.test", "Dr. Wanjiru Kamau", "teacher"},
		{SeedAmaraID, "amara@student.test", "Amara Osei", "student"},
		{SeedBarakaID, "baraka@student.test", "Baraka Mwangi", "student"},
	}
	for _, u := range users {
		if !exec(`INSERT OR IGNORE INTO users (id, email, password_hash, name, role, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.id, u.email, pw, u.name, u.role, now, now) {
			return
		}
	}

	// ── Today's session, attendance not yet started ──────────────────────
	if !exec(`INSERT OR IGNORE INTO class_sessions (id, teacher_id, class_name, starts_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		SeedPhysicsSessionID, SeedTeacherID, "Physics 101", now.Add(-10*time.Minute), now, now) {
		return
	}

	// ── Last week's session with a reviewed and an unreviewed check-in ───
	lastWeek := now.AddDate(0, 0, -7)
	if !exec(`INSERT OR IGNORE INTO class_sessions
		 (id, teacher_id, class_name, starts_at, attendance_open, method, late_after_minutes,
		  opened_at, origin_lat, origin_lon, radius_meters, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, 'qr', 15, ?, ?, ?, 100, ?, ?)`,
		SeedChemistrySessionID, SeedTeacherID, "Chemistry 201", lastWeek, lastWeek,
		seedOriginLat, seedOriginLon, lastWeek, lastWeek) {
		return
	}
	if !exec(`INSERT OR IGNORE INTO attendances
		 (id, session_id, student_id, status, is_valid, checkin_time, latitude, longitude, distance_meters, no_gps_reason)
		 VALUES ('seed-att-amara-chem', ?, ?, 'on_time', 1, ?, ?, ?, 12.4, '')`,
		SeedChemistrySessionID, SeedAmaraID, lastWeek.Add(3*time.Minute), seedOriginLat+0.0001, seedOriginLon) {
		return
	}
	if !exec(`INSERT OR IGNORE INTO attendances
		 (id, session_id, student_id, status, is_valid, checkin_time, no_gps_reason)
		 VALUES ('seed-att-baraka-chem', ?, ?, 'late', NULL, ?, 'Phone GPS broken, sitting in the back row')`,
		SeedChemistrySessionID, SeedBarakaID, lastWeek.Add(22*time.Minute)) {
		return
	}

	respondData(w, http.StatusOK, "seeded", map[string]any{
		"accounts": []map[string]string{
			{"role": "teacher", "email": "teacher@school.test", "password": SeedPassword, "name": "Dr. Wanjiru Kamau"},
			{"role": "student", "email": "amara@student.test", "password": SeedPassword, "name": "Amara Osei"},
			{"role": "student", "email": "baraka@student.test", "password": SeedPassword, "name": "Baraka Mwangi"},
		},
		"sessions": []map[string]string{
			{"id": SeedPhysicsSessionID, "class_name": "Physics 101", "state": "attendance not started"},
			{"id": SeedChemistrySessionID, "class_name": "Chemistry 201", "state": "closed, one check-in pending review"},
		},
	})
}
