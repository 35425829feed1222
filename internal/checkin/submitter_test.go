package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/locate"
)

// fakeScanner records every request it is handed.
type fakeScanner struct {
	reqs []Request
	res  *Result
	err  error
}

func (f *fakeScanner) Scan(_ context.Context, req Request) (*Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	return &Result{Accepted: true, AttendanceStatus: StatusOnTime, Validity: ValidityValid}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustEstimate(t *testing.T, lat, lon float64, src geo.Source, opts ...geo.EstimateOption) geo.Estimate {
	t.Helper()
	e, err := geo.NewEstimate(lat, lon, src, opts...)
	if err != nil {
		t.Fatalf("NewEstimate: %v", err)
	}
	return e
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{"ABC123", "ABC123", false},
		{"  ABC123\n", "ABC123", false},
		{"https://host/student/scan?token=ABC123", "ABC123", false},
		{"https://host/student/scan?class=7&token=ABC123", "ABC123", false},
		{"/student/scan?token=eyJhbGci.eyJzdWIi.sig", "eyJhbGci.eyJzdWIi.sig", false},
		{"https://host/student/scan?token=a%2Bb", "a+b", false},
		{"", "", true},
		{"   ", "", true},
		{"https://host/student/scan", "", true},
		{"https://host/student/scan?token=", "", true},
		{"two words", "", true},
	}
	for _, tc := range cases {
		got, err := ExtractToken(tc.payload)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ExtractToken(%q): expected ErrInvalidToken, got %q, %v", tc.payload, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ExtractToken(%q): got %q, %v, want %q", tc.payload, got, err, tc.want)
		}
	}
}

func TestSubmit_TokenFormsAreEquivalent(t *testing.T) {
	est := mustEstimate(t, 1, 2, geo.SourceDevice)
	svc := &fakeScanner{}
	s := &Submitter{Service: svc, Logger: quietLogger()}

	for _, payload := range []string{"https://host/student/scan?token=ABC123", "ABC123"} {
		if _, err := s.Submit(context.Background(), payload, Resolved(est), ""); err != nil {
			t.Fatalf("Submit(%q): %v", payload, err)
		}
	}
	if len(svc.reqs) != 2 || svc.reqs[0].Token != svc.reqs[1].Token || svc.reqs[0].Token != "ABC123" {
		t.Errorf("tokens differ: %+v", svc.reqs)
	}
}

func TestNewRequest_MutualExclusivity(t *testing.T) {
	est := mustEstimate(t, 1, 2, geo.SourceNetwork)

	req, err := NewRequest("T", &est, "")
	if err != nil {
		t.Fatalf("NewRequest with location: %v", err)
	}
	if req.Location == nil || req.NoLocationJustification != "" {
		t.Errorf("location request: %+v", req)
	}

	req, err = NewRequest("T", nil, "  GPS off, indoor  ")
	if err != nil {
		t.Fatalf("NewRequest with reason: %v", err)
	}
	if req.Location != nil || req.NoLocationJustification != "GPS off, indoor" {
		t.Errorf("reason request: %+v", req)
	}

	if _, err := NewRequest("T", &est, "reason"); !errors.Is(err, ErrLocationAndJustification) {
		t.Errorf("both set: got %v", err)
	}
	if _, err := NewRequest("T", nil, " \t "); !errors.Is(err, ErrMissingJustification) {
		t.Errorf("neither set: got %v", err)
	}
	zero := geo.Estimate{}
	if _, err := NewRequest("T", &zero, ""); !errors.Is(err, ErrMissingJustification) {
		t.Errorf("zero estimate counts as no location: got %v", err)
	}
}

func TestSubmit_JustificationGate(t *testing.T) {
	failed := Failed(&locate.AllSourcesExhaustedError{})
	for _, reason := range []string{"", "   ", "\n\t"} {
		svc := &fakeScanner{}
		s := &Submitter{Service: svc, Logger: quietLogger()}
		_, err := s.Submit(context.Background(), "ABC123", failed, reason)
		if !errors.Is(err, ErrMissingJustification) {
			t.Errorf("reason %q: expected ErrMissingJustification, got %v", reason, err)
		}
		if len(svc.reqs) != 0 {
			t.Errorf("reason %q: service was called", reason)
		}
	}
}

func TestSubmit_LowTrustEstimateSentAsGiven(t *testing.T) {
	est := mustEstimate(t, 1, 2, geo.SourceNetwork, geo.WithAccuracy(locate.NetworkAccuracyMeters))
	svc := &fakeScanner{}
	s := &Submitter{Service: svc, Logger: quietLogger()}

	if _, err := s.Submit(context.Background(), "ABC123", Resolved(est), ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(svc.reqs) != 1 || svc.reqs[0].Location == nil || svc.reqs[0].Location.Latitude() != 1 {
		t.Errorf("requests: %+v", svc.reqs)
	}
}

func TestSubmit_ServiceErrorPassesThrough(t *testing.T) {
	svc := &fakeScanner{err: &ServiceError{Kind: KindOutOfRadius, Status: 403, Message: "too far"}}
	s := &Submitter{Service: svc, Logger: quietLogger()}

	_, err := s.Submit(context.Background(), "ABC123", Resolved(mustEstimate(t, 1, 2, geo.SourceDevice)), "")
	if !errors.Is(err, ErrOutOfRadius) {
		t.Fatalf("expected ErrOutOfRadius, got %v", err)
	}
	if len(svc.reqs) != 1 {
		t.Errorf("service calls: got %d, want 1 (no retry)", len(svc.reqs))
	}
}

// Both automated sources fail and the student explains why; the service is
// called exactly once with the reason and no coordinates.
func TestScenario_JustifiedCheckInWithoutLocation(t *testing.T) {
	var calls atomic.Int32
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/attendance/scan" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"message":"checked in","data":{"id":"a1","status":"late","is_valid":null,"checkin_time":"2026-10-18T08:05:00Z","class_info":{"class_name":"Physics 101"},"no_gps_reason":"GPS off, indoor"}}`)
	}))
	defer ts.Close()

	ipDown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ipDown.Close()

	resolver := locate.NewResolver(quietLogger(),
		&locate.DeviceAdapter{},
		&locate.NetworkAdapter{
			Client:    ipDown.Client(),
			Primary:   locate.IPAPICo(ipDown.URL),
			Alternate: locate.IPAPICom(ipDown.URL),
		},
	)
	_, rerr := resolver.Resolve(context.Background(), locate.ResolveOptions{})
	var exhausted *locate.AllSourcesExhaustedError
	if !errors.As(rerr, &exhausted) {
		t.Fatalf("expected exhaustion, got %v", rerr)
	}
	if len(exhausted.Attempts) != 2 {
		t.Errorf("attempts: %+v", exhausted.Attempts)
	}

	client := NewClient(ts.URL+"/api", "opaque-bearer", ts.Client())
	client.Logger = quietLogger()
	s := &Submitter{Service: client, Logger: quietLogger()}

	res, err := s.Submit(context.Background(), "ABC123", Failed(rerr), "GPS off, indoor")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("service calls: got %d, want 1", calls.Load())
	}
	if body["token"] != "ABC123" || body["no_gps_reason"] != "GPS off, indoor" {
		t.Errorf("body: %v", body)
	}
	if _, ok := body["latitude"]; ok {
		t.Errorf("latitude must be absent: %v", body)
	}
	if res.Validity != ValidityPending || res.AttendanceStatus != StatusLate {
		t.Errorf("result: %+v", res)
	}
	if res.ClassInfo.ClassName != "Physics 101" {
		t.Errorf("class info: %+v", res.ClassInfo)
	}
}
