// Package checkin submits geofenced attendance check-ins.
//
// A check-in pairs a scanned single-use token with either a resolved
// location estimate or, when no location could be obtained, a written
// reason. The validation service is the sole judge of token expiry,
// single use and distance from the session's origin point. This package
// only builds well-formed requests and reports the verdict unchanged.
package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// maxResponseBody caps how much of a service response is read.
const maxResponseBody = 1 << 20

// Client talks to the attendance REST API with a bearer token issued by
// the external auth service.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
	Logger  *slog.Logger
	// Now is used for the local bearer expiry check. Defaults to time.Now.
	Now func() time.Time
}

// NewClient returns a Client for the API rooted at baseURL (for example
// "https://attendance.example.edu/api").
func NewClient(baseURL, bearer string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    httpClient,
		Logger:  slog.Default(),
		Now:     time.Now,
	}
}

// envelope is the service's common response shape.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// Scan posts req to /attendance/scan exactly once.
func (c *Client) Scan(ctx context.Context, req Request) (*Result, error) {
	var data scanData
	msg, err := c.do(ctx, http.MethodPost, "/attendance/scan", req.body(), &data)
	if err != nil {
		return nil, err
	}
	return c.result(data, msg), nil
}

// StartRequest opens attendance for a class session. Origin is the
// teacher's resolved location.
type StartRequest struct {
	Method           string
	LateAfterMinutes int
	Origin           geo.Estimate
	RadiusMeters     float64
}

// StartResult is the QR session the service issued.
type StartResult struct {
	QRToken    string
	CheckinURL string
	ExpiresAt  time.Time
	Origin     geo.Point
}

// StartAttendance posts to /sessions/{id}/attendance/start.
func (c *Client) StartAttendance(ctx context.Context, sessionID string, req StartRequest) (*StartResult, error) {
	if req.Origin.IsZero() {
		return nil, errors.New("start attendance: origin location is required")
	}
	if req.RadiusMeters <= 0 {
		return nil, errors.New("start attendance: radius must be positive")
	}
	if req.Method == "" {
		req.Method = "qr"
	}

	body := struct {
		Method           string  `json:"method"`
		LateAfterMinutes int     `json:"late_after_minutes"`
		Latitude         float64 `json:"latitude"`
		Longitude        float64 `json:"longitude"`
		LocationRadius   float64 `json:"location_radius"`
	}{req.Method, req.LateAfterMinutes, req.Origin.Latitude(), req.Origin.Longitude(), req.RadiusMeters}

	var data struct {
		QRToken          string    `json:"qr_token"`
		CheckinURL       string    `json:"checkin_url"`
		ExpiresAt        time.Time `json:"expires_at"`
		TeacherLatitude  float64   `json:"teacher_latitude"`
		TeacherLongitude float64   `json:"teacher_longitude"`
	}
	path := "/sessions/" + url.PathEscape(sessionID) + "/attendance/start"
	if _, err := c.do(ctx, http.MethodPost, path, body, &data); err != nil {
		return nil, err
	}
	return &StartResult{
		QRToken:    data.QRToken,
		CheckinURL: data.CheckinURL,
		ExpiresAt:  data.ExpiresAt,
		Origin:     geo.Point{Lat: data.TeacherLatitude, Lon: data.TeacherLongitude},
	}, nil
}

// CloseAttendance posts to /sessions/{id}/attendance/close.
func (c *Client) CloseAttendance(ctx context.Context, sessionID string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/attendance/close"
	_, err := c.do(ctx, http.MethodPost, path, nil, nil)
	return err
}

// Record is one check-in on a session's roster.
type Record struct {
	Result
	StudentName string
}

// ListAttendance fetches a session's roster. With pendingOnly set, only
// check-ins still awaiting review are returned.
func (c *Client) ListAttendance(ctx context.Context, sessionID string, pendingOnly bool) ([]Record, error) {
	path := "/sessions/" + url.PathEscape(sessionID) + "/attendance"
	if pendingOnly {
		path += "?pending=true"
	}
	var rows []struct {
		scanData
		StudentName string `json:"student_name"`
	}
	if _, err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{Result: *c.result(r.scanData, ""), StudentName: r.StudentName})
	}
	return out, nil
}

// result converts d, warning when the service sent a status this client
// does not know.
func (c *Client) result(d scanData, message string) *Result {
	r := d.result(message)
	if r.AttendanceStatus == StatusUnknown {
		c.logger().Warn("unrecognised attendance status", "id", d.ID, "status", d.Status)
	}
	return r
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// SetValidity records a teacher's review of a check-in.
func (c *Client) SetValidity(ctx context.Context, attendanceID string, valid bool) error {
	path := "/attendance/" + url.PathEscape(attendanceID) + "/validity"
	_, err := c.do(ctx, http.MethodPatch, path, map[string]bool{"is_valid": valid}, nil)
	return err
}

// checkBearer rejects a JWT bearer whose exp has passed without a round
// trip. Opaque (non-JWT) bearers are left for the service to judge.
func (c *Client) checkBearer() error {
	if c.Bearer == "" {
		return &ServiceError{Kind: KindUnauthorized, Message: "not logged in"}
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.Bearer, &claims); err != nil {
		return nil
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if claims.ExpiresAt != nil && !now().Before(claims.ExpiresAt.Time) {
		return &ServiceError{Kind: KindUnauthorized, Message: "login expired, sign in again"}
	}
	return nil
}

// do sends one request and decodes the envelope's data into out. Service
// rejections come back as *ServiceError; transport failures are wrapped.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (string, error) {
	if err := c.checkBearer(); err != nil {
		return "", err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Bearer)
	req.Header.Set("X-Request-ID", requestID)

	logger := c.logger()
	start := time.Now()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			msg := strings.TrimSpace(string(raw))
			return "", &ServiceError{Kind: classify(resp.StatusCode, "", msg), Status: resp.StatusCode, Message: msg}
		}
		return "", fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		return "", &ServiceError{
			Kind:    classify(resp.StatusCode, env.Code, env.Message),
			Status:  resp.StatusCode,
			Message: env.Message,
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return env.Message, nil
}
