// Package handlers contains the HTTP handlers of the attendance server.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE: package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the "handlers" package so they can use each
// other's helpers without exporting them. They are split by resource
// (auth, sessions, attendance) purely for readability.
//
// Every handler hangs off Server, which holds the database, the JWT
// secret and the few settings the handlers need. Tests build their own
// Server with a private in-memory database.
package handlers

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Elizabethomito/geocheckin/internal/models"
)

// Machine-readable rejection codes. Clients branch on these, so they are
// part of the API.
const (
	CodeInvalidToken     = "invalid_token"
	CodeTokenExpired     = "token_expired"
	CodeSessionInactive  = "session_inactive"
	CodeAlreadyCheckedIn = "already_checked_in"
	CodeOutOfRadius      = "out_of_radius"
	CodeLocationRequired = "location_required"
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal"
)

// respond writes v as JSON with the given HTTP status code.
// Content-Type must be set before WriteHeader flushes the headers.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondData wraps data in a successful envelope.
func respondData(w http.ResponseWriter, status int, message string, data any) {
	respond(w, status, models.Envelope{Success: true, Message: message, Data: data})
}

// respondError sends {"success":false,"code":...,"message":...}.
func respondError(w http.ResponseWriter, status int, code, msg string) {
	respond(w, status, models.Envelope{Success: false, Code: code, Message: msg})
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Server holds shared dependencies for all handlers.
type Server struct {
	// DB is the SQLite connection pool.
	DB *sql.DB
	// Secret is the HMAC key used to sign and verify JWTs.
	Secret string
	// QRTTL is how long a QR token stays scannable. Zero means
	// auth.DefaultQRTokenTTL.
	QRTTL time.Duration
	// FrontendURL prefixes the check-in link encoded in the QR image,
	// e.g. "https://attendance.example.edu".
	FrontendURL string

	// EnableSeed exposes POST /api/admin/seed. Leave it off outside demos.
	EnableSeed bool

	Logger  *slog.Logger
	Metrics *Metrics
	// Now is the clock used for check-in times. Defaults to time.Now.
	Now func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
