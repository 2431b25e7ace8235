// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fieldthebern/groundgame/spatial"
	"github.com/fieldthebern/groundgame/utils/httputils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultGoogleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	region     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// GoogleOption configures a GoogleMapsGeocoder.
type GoogleOption func(*GoogleMapsGeocoder)

// WithGoogleBaseURL overrides the API endpoint.
func WithGoogleBaseURL(u string) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.baseURL = u }
}

// WithGoogleRegion sets the region bias (ccTLD, e.g. "us").
func WithGoogleRegion(region string) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.region = region }
}

// WithGoogleHTTPClient replaces the HTTP client.
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.httpClient = c }
}

// WithGoogleTimeout sets the per request timeout.
func WithGoogleTimeout(d time.Duration) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.httpClient.Timeout = d }
}

// WithGoogleRateLimit caps requests per second. Zero disables the limit.
func WithGoogleRateLimit(perSecond float64) GoogleOption {
	return func(g *GoogleMapsGeocoder) {
		if perSecond <= 0 {
			g.limiter = nil

			return
		}

		g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithGoogleTrace dumps every request and response to w.
func WithGoogleTrace(w io.Writer) GoogleOption {
	return func(g *GoogleMapsGeocoder) {
		transport := g.httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}

		g.httpClient.Transport = &httputils.LoggingRoundTripper{Transport: transport, Writer: w}
	}
}

// WithGoogleLogger sets the logger.
func WithGoogleLogger(l *zap.Logger) GoogleOption {
	return func(g *GoogleMapsGeocoder) { g.logger = l }
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder.
func NewGoogleMapsGeocoder(apiKey string, opts ...GoogleOption) *GoogleMapsGeocoder {
	g := &GoogleMapsGeocoder{
		apiKey:  apiKey,
		baseURL: defaultGoogleGeocodeURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

type googleMapsResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, address string) ([]Placemark, error) {
	params := url.Values{}
	params.Set("address", address)

	if g.region != "" {
		params.Set("region", g.region)
	}

	return g.query(ctx, params)
}

// ReverseGeocode implements Geocoder.
func (g *GoogleMapsGeocoder) ReverseGeocode(ctx context.Context, point spatial.Point) ([]Placemark, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", point.Lat, point.Lng))
	params.Set("result_type", "street_address|premise")

	return g.query(ctx, params)
}

func (g *GoogleMapsGeocoder) query(ctx context.Context, params url.Values) ([]Placemark, error) {
	if g.apiKey == "" {
		return nil, &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "google maps api key not configured"}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportError(err)
		}
	}

	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building geocoding request: %w", err)
	}

	start := time.Now()

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return nil, ClassifyHTTPError(resp.StatusCode, string(body))
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	g.logger.Debug("google maps geocode",
		zap.String("status", gmResp.Status),
		zap.Int("results", len(gmResp.Results)),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []Placemark{}, nil
	default:
		return nil, classifyStatus(gmResp.Status, gmResp.ErrorMessage)
	}

	placemarks := make([]Placemark, 0, len(gmResp.Results))
	for _, r := range gmResp.Results {
		placemarks = append(placemarks, r.placemark())
	}

	return placemarks, nil
}

func (r googleResult) placemark() Placemark {
	point := spatial.NewPoint(r.Geometry.Location.Lat, r.Geometry.Location.Lng)

	pm := Placemark{
		FormattedAddress: r.FormattedAddress,
		Point:            &point,
	}

	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			switch t {
			case "street_number":
				pm.SubThoroughfare = c.LongName
			case "route":
				pm.Thoroughfare = c.LongName
			case "locality":
				pm.Locality = c.LongName
			case "postal_town", "sublocality":
				if pm.Locality == "" {
					pm.Locality = c.LongName
				}
			case "administrative_area_level_1":
				pm.AdministrativeArea = c.ShortName
			case "postal_code":
				pm.PostalCode = c.LongName
			}
		}
	}

	return pm
}
