package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Elizabethomito/geocheckin/internal/auth"
	"github.com/Elizabethomito/geocheckin/internal/middleware"
	"github.com/Elizabethomito/geocheckin/internal/models"
)

// Accounts are provisioned out of band (the demo seed, or the school's
// directory); this service only issues bearers for them.

// Login handles POST /api/auth/login and returns a bearer JWT.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON")
		return
	}

	user, hash, err := s.userByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials")
		return
	case err != nil:
		s.logger().Error("login lookup", "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(user.ID, string(user.Role), s.Secret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "could not generate token")
		return
	}
	s.logger().Info("login", "user_id", user.ID, "role", user.Role)
	respondData(w, http.StatusOK, "logged in", models.LoginResponse{Token: token, User: *user})
}

func (s *Server) userByEmail(ctx context.Context, email string) (*models.User, string, error) {
	var (
		u    models.User
		hash string
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, created_at, updated_at
		 FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &hash, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, "", err
	}
	return &u, hash, nil
}

// Me handles GET /api/auth/me: the caller plus their timetable. Teachers
// see the sessions they teach with roster counts; students see the
// sessions they checked in to with their own verdict.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var me models.MeResponse
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, name, role, created_at, updated_at FROM users WHERE id = ?`, userID,
	).Scan(&me.ID, &me.Email, &me.Name, &me.Role, &me.CreatedAt, &me.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondError(w, http.StatusNotFound, CodeNotFound, "user not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}

	if me.Role == models.RoleTeacher {
		me.Sessions, err = s.teacherSessions(ctx, userID)
	} else {
		me.Sessions, err = s.studentSessions(ctx, userID)
	}
	if err != nil {
		s.logger().Error("list sessions", "user_id", userID, "err", err)
		respondError(w, http.StatusInternalServerError, CodeInternal, "database error")
		return
	}
	respondData(w, http.StatusOK, "", me)
}

func (s *Server) teacherSessions(ctx context.Context, teacherID string) ([]models.SessionSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT cs.id, cs.class_name, cs.starts_at, cs.attendance_open,
		        COUNT(a.id), COUNT(a.id) - COUNT(a.is_valid)
		 FROM class_sessions cs LEFT JOIN attendances a ON a.session_id = cs.id
		 WHERE cs.teacher_id = ?
		 GROUP BY cs.id
		 ORDER BY cs.starts_at DESC`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SessionSummary{}
	for rows.Next() {
		var (
			sum  models.SessionSummary
			open int
		)
		if err := rows.Scan(&sum.SessionID, &sum.ClassName, &sum.StartsAt, &open,
			&sum.CheckedIn, &sum.PendingReview); err != nil {
			return nil, err
		}
		sum.AttendanceOpen = open != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Server) studentSessions(ctx context.Context, studentID string) ([]models.SessionSummary, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT cs.id, cs.class_name, cs.starts_at, cs.attendance_open, a.status, a.is_valid
		 FROM attendances a JOIN class_sessions cs ON cs.id = a.session_id
		 WHERE a.student_id = ?
		 ORDER BY cs.starts_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SessionSummary{}
	for rows.Next() {
		var (
			sum     models.SessionSummary
			open    int
			isValid sql.NullBool
		)
		if err := rows.Scan(&sum.SessionID, &sum.ClassName, &sum.StartsAt, &open,
			&sum.Status, &isValid); err != nil {
			return nil, err
		}
		sum.AttendanceOpen = open != 0
		switch {
		case !isValid.Valid:
			sum.Review = models.ReviewPending
		case isValid.Bool:
			sum.Review = models.ReviewValid
		default:
			sum.Review = models.ReviewInvalid
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
