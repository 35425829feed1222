package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	c := NewClient(ts.URL+"/api/", "opaque-bearer", ts.Client())
	c.Logger = quietLogger()
	return c, &calls
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestClientScan_WithLocation(t *testing.T) {
	var got scanBody
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/attendance/scan" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer opaque-bearer" {
			t.Errorf("Authorization: %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
		json.NewDecoder(r.Body).Decode(&got)
		reply(w, http.StatusOK, `{"success":true,"message":"ok","data":{"id":"a1","status":"on_time","is_valid":true,"latitude":-6.2,"longitude":106.8,"distance_meters":12.5}}`)
	})

	est := mustEstimate(t, -6.2, 106.8, geo.SourceDevice, geo.WithAccuracy(8))
	req, err := NewRequest("ABC123", &est, "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
	if got.Token != "ABC123" || got.Latitude == nil || *got.Latitude != -6.2 || got.NoGPSReason != "" {
		t.Errorf("body: %+v", got)
	}
	if !res.Accepted || res.AttendanceStatus != StatusOnTime || res.Validity != ValidityValid {
		t.Errorf("result: %+v", res)
	}
	if res.DistanceFromOriginMeters == nil || *res.DistanceFromOriginMeters != 12.5 {
		t.Errorf("distance: %v", res.DistanceFromOriginMeters)
	}
}

func TestClientScan_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"expired code", http.StatusGone, `{"success":false,"code":"token_expired","message":"QR expired"}`, KindTokenExpired},
		{"radius code", http.StatusForbidden, `{"success":false,"code":"out_of_radius","message":"312m from class"}`, KindOutOfRadius},
		{"duplicate code", http.StatusConflict, `{"success":false,"code":"already_checked_in","message":"dup"}`, KindAlreadyCheckedIn},
		{"inactive code", http.StatusConflict, `{"success":false,"code":"session_inactive","message":"closed"}`, KindSessionInactive},
		{"status only 410", http.StatusGone, `{"success":false}`, KindTokenExpired},
		{"status only 401", http.StatusUnauthorized, `{"success":false}`, KindUnauthorized},
		{"message keyword", http.StatusBadRequest, `{"success":false,"message":"You are outside the allowed radius"}`, KindOutOfRadius},
		{"bare 409", http.StatusConflict, `{"success":false,"message":"conflict"}`, KindAlreadyCheckedIn},
		{"plain text body", http.StatusBadGateway, `upstream down`, KindRejected},
		{"success false on 200", http.StatusOK, `{"success":false,"message":"session is not active"}`, KindSessionInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				reply(w, tc.status, tc.body)
			})
			req, _ := NewRequest("ABC123", nil, "no signal")
			_, err := c.Scan(context.Background(), req)

			var se *ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("expected *ServiceError, got %v", err)
			}
			if se.Kind != tc.want {
				t.Errorf("kind: got %s, want %s", se.Kind, tc.want)
			}
			if !errors.Is(err, &ServiceError{Kind: tc.want}) {
				t.Errorf("errors.Is by kind failed for %v", err)
			}
			if calls.Load() != 1 {
				t.Errorf("calls: got %d, want 1 (no retry)", calls.Load())
			}
		})
	}
}

func TestClient_ExpiredBearerSkipsNetwork(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `{"success":true}`)
	})

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := tok.SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatal(err)
	}
	c.Bearer = signed

	req, _ := NewRequest("ABC123", nil, "no signal")
	if _, err := c.Scan(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls: got %d, want 0", calls.Load())
	}

	c.Bearer = ""
	if _, err := c.Scan(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty bearer: expected ErrUnauthorized, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls: got %d, want 0", calls.Load())
	}
}

func TestClient_LiveBearerIsSent(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, _ := tok.SignedString([]byte("irrelevant"))

	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+signed {
			t.Errorf("Authorization: %q", r.Header.Get("Authorization"))
		}
		reply(w, http.StatusOK, `{"success":true,"data":{"status":"late"}}`)
	})
	c.Bearer = signed

	req, _ := NewRequest("ABC123", nil, "no signal")
	res, err := c.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if calls.Load() != 1 || res.AttendanceStatus != StatusLate {
		t.Errorf("calls %d, result %+v", calls.Load(), res)
	}
}

func TestClientStartAttendance(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/s-1/attendance/start" {
			t.Errorf("path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		reply(w, http.StatusCreated, `{"success":true,"data":{"qr_token":"QR","expires_at":"2026-10-18T09:00:00Z","teacher_latitude":-6.2,"teacher_longitude":106.8}}`)
	})

	origin := mustEstimate(t, -6.2, 106.8, geo.SourceDevice)
	res, err := c.StartAttendance(context.Background(), "s-1", StartRequest{Origin: origin, RadiusMeters: 100, LateAfterMinutes: 10})
	if err != nil {
		t.Fatalf("StartAttendance: %v", err)
	}
	if res.QRToken != "QR" || res.Origin.Lat != -6.2 || res.ExpiresAt.IsZero() {
		t.Errorf("result: %+v", res)
	}
	if body["method"] != "qr" || body["location_radius"] != float64(100) || body["late_after_minutes"] != float64(10) {
		t.Errorf("body: %v", body)
	}
}

func TestClientStartAttendance_Validation(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `{"success":true}`)
	})
	if _, err := c.StartAttendance(context.Background(), "s-1", StartRequest{RadiusMeters: 100}); err == nil {
		t.Error("expected error for missing origin")
	}
	origin := mustEstimate(t, 1, 1, geo.SourceManual)
	if _, err := c.StartAttendance(context.Background(), "s-1", StartRequest{Origin: origin}); err == nil {
		t.Error("expected error for zero radius")
	}
	if calls.Load() != 0 {
		t.Errorf("calls: got %d, want 0", calls.Load())
	}
}

func TestClientSetValidity(t *testing.T) {
	var body map[string]bool
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/attendance/a1/validity" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		reply(w, http.StatusOK, `{"success":true}`)
	})
	if err := c.SetValidity(context.Background(), "a1", false); err != nil {
		t.Fatalf("SetValidity: %v", err)
	}
	if v, ok := body["is_valid"]; !ok || v {
		t.Errorf("body: %v", body)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want AttendanceStatus
	}{
		{"on_time", StatusOnTime},
		{" Present ", StatusOnTime},
		{"LATE", StatusLate},
		{"absent", StatusAbsent},
		{"", StatusUnknown},
		{"excused", StatusUnknown},
	}
	for _, tc := range tests {
		if got := parseStatus(tc.in); got != tc.want {
			t.Errorf("parseStatus(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestClientScan_UnknownStatusIsLogged(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, `{"success":true,"data":{"id":"a9","status":"excused","is_valid":null}}`)
	})
	var logs bytes.Buffer
	c.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	req, err := NewRequest("ABC123", nil, "at the clinic")
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.AttendanceStatus != StatusUnknown {
		t.Errorf("status: got %s, want %s", res.AttendanceStatus, StatusUnknown)
	}
	if !strings.Contains(logs.String(), "unrecognised attendance status") || !strings.Contains(logs.String(), "status=excused") {
		t.Errorf("no warning logged:\n%s", logs.String())
	}
}
