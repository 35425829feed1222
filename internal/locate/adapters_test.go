package locate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

func TestDeviceAdapter_NoPositioner(t *testing.T) {
	_, err := (&DeviceAdapter{}).Acquire(context.Background())
	if !errors.Is(err, ErrPositioningUnavailable) {
		t.Fatalf("expected ErrPositioningUnavailable, got %v", err)
	}
}

func TestDeviceAdapter_RequestsFreshHighAccuracyFix(t *testing.T) {
	var got FixRequest
	a := &DeviceAdapter{Positioner: positionerFunc(func(_ context.Context, req FixRequest) (Fix, error) {
		got = req
		return Fix{Latitude: 1, Longitude: 2}, nil
	})}
	est, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !got.HighAccuracy || got.MaximumAge != 0 || got.Timeout != DefaultDeviceTimeout {
		t.Errorf("fix request: %+v", got)
	}
	if _, ok := est.Accuracy(); ok {
		t.Error("fix without accuracy should give an estimate without accuracy")
	}
}

func TestDeviceAdapter_Timeout(t *testing.T) {
	a := &DeviceAdapter{
		Timeout: 20 * time.Millisecond,
		Positioner: positionerFunc(func(ctx context.Context, _ FixRequest) (Fix, error) {
			<-ctx.Done()
			return Fix{}, ctx.Err()
		}),
	}
	_, err := a.Acquire(context.Background())
	if !errors.Is(err, ErrPositioningTimeout) {
		t.Fatalf("expected ErrPositioningTimeout, got %v", err)
	}
}

func TestDeviceAdapter_InvalidFix(t *testing.T) {
	a := &DeviceAdapter{Positioner: StaticPositioner{Latitude: 95, Longitude: 0}}
	_, err := a.Acquire(context.Background())
	var ice *geo.InvalidCoordinateError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InvalidCoordinateError, got %v", err)
	}
}

func TestNetworkAdapter_FallsBackToAlternate(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer primary.Close()
	alternate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","lat":-1.28,"lon":36.82}`)
	}))
	defer alternate.Close()

	a := &NetworkAdapter{Primary: IPAPICo(primary.URL), Alternate: IPAPICom(alternate.URL)}
	est, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if est.Source() != geo.SourceNetwork {
		t.Errorf("source: got %s", est.Source())
	}
	if acc, ok := est.Accuracy(); !ok || acc != NetworkAccuracyMeters {
		t.Errorf("accuracy: got %v,%v, want %v", acc, ok, NetworkAccuracyMeters)
	}
}

func TestNetworkAdapter_BothFail(t *testing.T) {
	var primaryHits, alternateHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		fmt.Fprint(w, `{"ip":"10.0.0.1"}`) // no coordinates
	}))
	defer primary.Close()
	alternate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alternateHits.Add(1)
		fmt.Fprint(w, `{"status":"fail","message":"private range"}`)
	}))
	defer alternate.Close()

	a := &NetworkAdapter{Primary: IPAPICo(primary.URL), Alternate: IPAPICom(alternate.URL)}
	_, err := a.Acquire(context.Background())

	var netErr *NetworkLocationError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkLocationError, got %v", err)
	}
	if !errors.Is(netErr.Primary, errMissingCoordinates) {
		t.Errorf("primary: got %v", netErr.Primary)
	}
	if netErr.Alternate == nil {
		t.Error("alternate failure should be recorded")
	}
	if primaryHits.Load() != 1 || alternateHits.Load() != 1 {
		t.Errorf("hits: primary=%d alternate=%d, want exactly one each", primaryHits.Load(), alternateHits.Load())
	}
}

func TestNetworkAdapter_MalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	}))
	defer ts.Close()

	_, err := (&NetworkAdapter{Primary: IPAPICo(ts.URL)}).Acquire(context.Background())
	var netErr *NetworkLocationError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkLocationError, got %v", err)
	}
}

func TestGeocoder_Lookup(t *testing.T) {
	var gotQuery, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q") + "|" + r.URL.Query().Get("format") + "|" + r.URL.Query().Get("limit")
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `[{"lat":"-1.2864","lon":"36.8172","display_name":"Nairobi, Kenya"},{"lat":"0","lon":"0","display_name":"other"}]`)
	}))
	defer ts.Close()

	g := &Geocoder{Client: ts.Client(), URL: ts.URL, UserAgent: "geocheckin-test"}
	est, err := g.ForAddress("  Nairobi ").Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if gotQuery != "Nairobi|json|1" {
		t.Errorf("query: got %q", gotQuery)
	}
	if gotUA != "geocheckin-test" {
		t.Errorf("user agent: got %q", gotUA)
	}
	if est.Source() != geo.SourceAddress || est.DisplayLabel() != "Nairobi, Kenya" {
		t.Errorf("got %v", est)
	}
	if acc, _ := est.Accuracy(); acc != AddressAccuracyMeters {
		t.Errorf("accuracy: got %v", acc)
	}
}

func TestGeocoder_NoMatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer ts.Close()

	_, err := (&Geocoder{URL: ts.URL}).Lookup(context.Background(), "nowhere at all")
	var nf *AddressNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected AddressNotFoundError, got %v", err)
	}
	if nf.Err != nil {
		t.Errorf("no-match should carry no lookup error, got %v", nf.Err)
	}
}

func TestGeocoder_LookupFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := (&Geocoder{URL: ts.URL}).Lookup(context.Background(), "Kisumu")
	var nf *AddressNotFoundError
	if !errors.As(err, &nf) || nf.Err == nil {
		t.Fatalf("expected AddressNotFoundError with cause, got %v", err)
	}
}

// fakeGPSD serves one connection, waits for the WATCH command and then
// writes lines.
func fakeGPSD(t *testing.T, lines ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
			return
		}
		for _, l := range lines {
			fmt.Fprintln(conn, l)
		}
		// Hold the connection open until the client hangs up.
		buf := make([]byte, 1)
		conn.Read(buf)
	}()
	return ln.Addr().String()
}

func TestGPSDPositioner(t *testing.T) {
	addr := fakeGPSD(t,
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"DEVICES","devices":[{"path":"/dev/ttyUSB0"}]}`,
		`{"class":"TPV","mode":1}`,
		`{"class":"TPV","mode":3,"time":"2026-10-18T08:00:00.000Z","lat":-0.0917,"lon":34.768,"epx":4.5,"epy":7.25}`,
	)

	a := &DeviceAdapter{Positioner: &GPSDPositioner{Addr: addr}, Timeout: 2 * time.Second}
	est, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if est.Latitude() != -0.0917 || est.Longitude() != 34.768 {
		t.Errorf("coords: got %v", est)
	}
	if acc, ok := est.Accuracy(); !ok || acc != 7.25 {
		t.Errorf("accuracy: got %v,%v, want 7.25", acc, ok)
	}
}

func TestGPSDPositioner_NoReceivers(t *testing.T) {
	addr := fakeGPSD(t, `{"class":"DEVICES","devices":[]}`)

	_, err := (&GPSDPositioner{Addr: addr}).CurrentPosition(context.Background(), FixRequest{})
	if !errors.Is(err, ErrPositioningUnavailable) {
		t.Fatalf("expected ErrPositioningUnavailable, got %v", err)
	}
}

func TestGPSDPositioner_NoFixTimesOut(t *testing.T) {
	addr := fakeGPSD(t, `{"class":"TPV","mode":1}`)

	a := &DeviceAdapter{Positioner: &GPSDPositioner{Addr: addr}, Timeout: 50 * time.Millisecond}
	_, err := a.Acquire(context.Background())
	if !errors.Is(err, ErrPositioningTimeout) {
		t.Fatalf("expected ErrPositioningTimeout, got %v", err)
	}
}

func TestGPSDPositioner_DaemonDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = (&GPSDPositioner{Addr: addr}).CurrentPosition(context.Background(), FixRequest{})
	if !errors.Is(err, ErrPositioningUnavailable) {
		t.Fatalf("expected ErrPositioningUnavailable, got %v", err)
	}
}

func TestGPSDDialErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EACCES)}, ErrPermissionDenied},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ErrPositioningUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := dialErr("localhost:2947", tc.err); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDeviceAdapter_StaticPositioner(t *testing.T) {
	acc := 3.0
	a := &DeviceAdapter{Positioner: StaticPositioner{Latitude: -0.0917, Longitude: 34.768, Accuracy: &acc}}
	est, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got, ok := est.Accuracy(); est.Source() != geo.SourceDevice || est.Latitude() != -0.0917 || !ok || got != 3 {
		t.Errorf("estimate: %s", est)
	}
}
