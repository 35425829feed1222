package handlers

import (
	"net/http"

	"github.com/Elizabethomito/geocheckin/internal/middleware"
	"github.com/Elizabethomito/geocheckin/internal/models"
)

// Routes registers every endpoint on a new ServeMux.
//
// Go 1.22+ ServeMux supports method prefixes ("GET /path") and path
// wildcards ("{id}") natively, so no third-party router is needed.
// Protected routes are wrapped as auth(onlyTeacher(handler)):
//  1. Authenticate sets user_id/role in context
//  2. RequireRole allows or rejects based on role
//  3. the handler does the work
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public routes.
	mux.HandleFunc("POST /api/auth/login", s.Login)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	// Demo seed; idempotent.
	if s.EnableSeed {
		mux.HandleFunc("POST /api/admin/seed", s.SeedDemo)
	}

	auth := middleware.Authenticate(s.Secret)
	onlyTeacher := middleware.RequireRole(string(models.RoleTeacher))
	onlyStudent := middleware.RequireRole(string(models.RoleStudent))

	mux.Handle("GET /api/auth/me",
		auth(http.HandlerFunc(s.Me)))

	// Teacher-only routes.
	mux.Handle("POST /api/sessions/{id}/attendance/start",
		auth(onlyTeacher(http.HandlerFunc(s.StartAttendance))))
	mux.Handle("POST /api/sessions/{id}/attendance/close",
		auth(onlyTeacher(http.HandlerFunc(s.CloseAttendance))))
	mux.Handle("GET /api/sessions/{id}/attendance/qr.png",
		auth(onlyTeacher(http.HandlerFunc(s.QRCode))))
	mux.Handle("GET /api/sessions/{id}/attendance",
		auth(onlyTeacher(http.HandlerFunc(s.ListAttendance))))
	mux.Handle("PATCH /api/attendance/{id}/validity",
		auth(onlyTeacher(http.HandlerFunc(s.SetValidity))))

	// Student-only routes.
	mux.Handle("POST /api/attendance/scan",
		auth(onlyStudent(http.HandlerFunc(s.Scan))))

	return mux
}
