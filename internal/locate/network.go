package locate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// NetworkAccuracyMeters is the uncertainty stamped on every IP-based
// estimate, whatever the provider claims.
const NetworkAccuracyMeters = 1000

const (
	DefaultIPAPICoURL  = "https://ipapi.co/json/"
	DefaultIPAPIComURL = "http://ip-api.com/json/"
)

// maxLookupBody caps how much of a lookup response is read.
const maxLookupBody = 1 << 20

var errMissingCoordinates = errors.New("response has no coordinates")

// IPLookup is one IP geolocation service. Parse extracts the coordinates
// from the response body; a nil coordinate means the service had none.
type IPLookup struct {
	Name  string
	URL   string
	Parse func(body []byte) (lat, lon *float64, err error)
}

// IPAPICo is the ipapi.co lookup ({"latitude":…, "longitude":…}).
// An empty url selects the public endpoint.
func IPAPICo(url string) IPLookup {
	if url == "" {
		url = DefaultIPAPICoURL
	}
	return IPLookup{
		Name: "ipapi.co",
		URL:  url,
		Parse: func(body []byte) (*float64, *float64, error) {
			var out struct {
				Latitude  *float64 `json:"latitude"`
				Longitude *float64 `json:"longitude"`
				Error     bool     `json:"error"`
				Reason    string   `json:"reason"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return nil, nil, fmt.Errorf("decode: %w", err)
			}
			if out.Error {
				return nil, nil, fmt.Errorf("service error: %s", out.Reason)
			}
			return out.Latitude, out.Longitude, nil
		},
	}
}

// IPAPICom is the ip-api.com lookup ({"status":"success","lat":…,"lon":…}).
// An empty url selects the public endpoint.
func IPAPICom(url string) IPLookup {
	if url == "" {
		url = DefaultIPAPIComURL
	}
	return IPLookup{
		Name: "ip-api.com",
		URL:  url,
		Parse: func(body []byte) (*float64, *float64, error) {
			var out struct {
				Status  string   `json:"status"`
				Message string   `json:"message"`
				Lat     *float64 `json:"lat"`
				Lon     *float64 `json:"lon"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return nil, nil, fmt.Errorf("decode: %w", err)
			}
			if out.Status != "" && out.Status != "success" {
				return nil, nil, fmt.Errorf("service error: %s", out.Message)
			}
			return out.Lat, out.Lon, nil
		},
	}
}

// NetworkAdapter estimates location from the caller's public IP. It asks
// Primary first and, on any failure, Alternate exactly once.
type NetworkAdapter struct {
	Client    *http.Client
	Primary   IPLookup
	Alternate IPLookup
}

// NewNetworkAdapter returns an adapter using ipapi.co with ip-api.com as the alternate.
func NewNetworkAdapter(client *http.Client) *NetworkAdapter {
	return &NetworkAdapter{
		Client:    client,
		Primary:   IPAPICo(""),
		Alternate: IPAPICom(""),
	}
}

func (a *NetworkAdapter) Source() geo.Source { return geo.SourceNetwork }

func (a *NetworkAdapter) Acquire(ctx context.Context) (geo.Estimate, error) {
	est, primaryErr := a.lookup(ctx, a.Primary)
	if primaryErr == nil {
		return est, nil
	}
	if ctx.Err() != nil {
		return geo.Estimate{}, ctx.Err()
	}
	if a.Alternate.URL == "" {
		return geo.Estimate{}, &NetworkLocationError{Primary: primaryErr}
	}

	est, alternateErr := a.lookup(ctx, a.Alternate)
	if alternateErr == nil {
		return est, nil
	}
	if ctx.Err() != nil {
		return geo.Estimate{}, ctx.Err()
	}
	return geo.Estimate{}, &NetworkLocationError{Primary: primaryErr, Alternate: alternateErr}
}

func (a *NetworkAdapter) lookup(ctx context.Context, l IPLookup) (geo.Estimate, error) {
	if l.URL == "" || l.Parse == nil {
		return geo.Estimate{}, fmt.Errorf("%s: lookup not configured", l.Name)
	}
	body, err := getJSON(ctx, a.client(), l.URL, "")
	if err != nil {
		return geo.Estimate{}, fmt.Errorf("%s: %w", l.Name, err)
	}
	lat, lon, err := l.Parse(body)
	if err != nil {
		return geo.Estimate{}, fmt.Errorf("%s: %w", l.Name, err)
	}
	if lat == nil || lon == nil {
		return geo.Estimate{}, fmt.Errorf("%s: %w", l.Name, errMissingCoordinates)
	}
	est, err := geo.NewEstimate(*lat, *lon, geo.SourceNetwork, geo.WithAccuracy(NetworkAccuracyMeters))
	if err != nil {
		return geo.Estimate{}, fmt.Errorf("%s: %w", l.Name, err)
	}
	return est, nil
}

func (a *NetworkAdapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return defaultHTTPClient
}

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// getJSON issues a GET and returns the body of a 2xx response.
func getJSON(ctx context.Context, client *http.Client, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
