package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Elizabethomito/geocheckin/internal/geo"
)

// AddressAccuracyMeters is the uncertainty stamped on geocoded estimates.
const AddressAccuracyMeters = 50

const (
	DefaultGeocoderURL = "https://nominatim.openstreetmap.org/search"
	DefaultUserAgent   = "geocheckin/1.0"
)

// Geocoder resolves free-text addresses through a Nominatim-compatible
// place search. Nominatim's usage policy requires an identifying User-Agent.
type Geocoder struct {
	Client    *http.Client
	URL       string
	UserAgent string
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Lookup returns an ADDRESS estimate for the best match of address.
func (g *Geocoder) Lookup(ctx context.Context, address string) (geo.Estimate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geo.Estimate{}, &AddressNotFoundError{Address: address}
	}

	base := g.URL
	if base == "" {
		base = DefaultGeocoderURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return geo.Estimate{}, &AddressNotFoundError{Address: address, Err: fmt.Errorf("geocoder url: %w", err)}
	}
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	ua := g.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := g.Client
	if client == nil {
		client = defaultHTTPClient
	}

	body, err := getJSON(ctx, client, u.String(), ua)
	if err != nil {
		if ctx.Err() != nil {
			return geo.Estimate{}, ctx.Err()
		}
		return geo.Estimate{}, &AddressNotFoundError{Address: address, Err: err}
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return geo.Estimate{}, &AddressNotFoundError{Address: address, Err: fmt.Errorf("decode: %w", err)}
	}
	if len(places) == 0 {
		return geo.Estimate{}, &AddressNotFoundError{Address: address}
	}

	best := places[0]
	est, err := geo.NewEstimate(best.Lat, best.Lon, geo.SourceAddress,
		geo.WithAccuracy(AddressAccuracyMeters),
		geo.WithLabel(best.DisplayName),
	)
	if err != nil {
		return geo.Estimate{}, &AddressNotFoundError{Address: address, Err: err}
	}
	return est, nil
}

// ForAddress returns an Adapter that geocodes address.
func (g *Geocoder) ForAddress(address string) *AddressAdapter {
	return &AddressAdapter{Geocoder: g, Address: address}
}

// AddressAdapter is the forward-geocoding source for one address.
type AddressAdapter struct {
	Geocoder *Geocoder
	Address  string
}

func (a *AddressAdapter) Source() geo.Source { return geo.SourceAddress }

func (a *AddressAdapter) Acquire(ctx context.Context) (geo.Estimate, error) {
	if a.Geocoder == nil {
		return geo.Estimate{}, &AddressNotFoundError{Address: a.Address, Err: ErrSourceNotConfigured}
	}
	return a.Geocoder.Lookup(ctx, a.Address)
}
