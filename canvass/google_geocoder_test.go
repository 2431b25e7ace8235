// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/fieldthebern/groundgame/spatial"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const googleOKResponse = `{
  "status": "OK",
  "results": [{
    "formatted_address": "123 Main St, New York, NY 10007, USA",
    "geometry": {"location": {"lat": 40.7128, "lng": -74.006}, "location_type": "ROOFTOP"},
    "address_components": [
      {"long_name": "123", "short_name": "123", "types": ["street_number"]},
      {"long_name": "Main Street", "short_name": "Main St", "types": ["route"]},
      {"long_name": "Manhattan", "short_name": "Manhattan", "types": ["sublocality", "political"]},
      {"long_name": "New York", "short_name": "New York", "types": ["locality", "political"]},
      {"long_name": "New York", "short_name": "NY", "types": ["administrative_area_level_1", "political"]},
      {"long_name": "10007", "short_name": "10007", "types": ["postal_code"]}
    ]
  }]
}`

func newGoogleTestServer(t *testing.T, status int, body string, seen *url.Values) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.URL.Query()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestGoogleGeocode(t *testing.T) {
	var seen url.Values

	srv := newGoogleTestServer(t, http.StatusOK, googleOKResponse, &seen)
	g := NewGoogleMapsGeocoder("test-key", WithGoogleBaseURL(srv.URL), WithGoogleRegion("us"))

	got, err := g.Geocode(context.Background(), "123 Main St New York NY")
	require.NoError(t, err)

	point := spatial.NewPoint(40.7128, -74.006)
	want := []Placemark{{
		Locality:           "New York",
		AdministrativeArea: "NY",
		PostalCode:         "10007",
		Thoroughfare:       "Main Street",
		SubThoroughfare:    "123",
		FormattedAddress:   "123 Main St, New York, NY 10007, USA",
		Point:              &point,
	}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Geocode() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "123 Main St New York NY", seen.Get("address"))
	assert.Equal(t, "us", seen.Get("region"))
	assert.Equal(t, "test-key", seen.Get("key"))
}

func TestGoogleReverseGeocode(t *testing.T) {
	var seen url.Values

	srv := newGoogleTestServer(t, http.StatusOK, googleOKResponse, &seen)
	g := NewGoogleMapsGeocoder("test-key", WithGoogleBaseURL(srv.URL))

	got, err := g.ReverseGeocode(context.Background(), spatial.NewPoint(40.7128, -74.006))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "123 Main Street", got[0].StreetLine())
	assert.Equal(t, "40.712800,-74.006000", seen.Get("latlng"))
	assert.Empty(t, seen.Get("address"))
}

func TestGoogleZeroResults(t *testing.T) {
	srv := newGoogleTestServer(t, http.StatusOK, `{"status": "ZERO_RESULTS", "results": []}`, nil)
	g := NewGoogleMapsGeocoder("test-key", WithGoogleBaseURL(srv.URL))

	got, err := g.Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGoogleErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorType
	}{
		{"over query limit", http.StatusOK, `{"status": "OVER_QUERY_LIMIT"}`, ErrorTypeRateLimit},
		{"denied", http.StatusOK, `{"status": "REQUEST_DENIED", "error_message": "bad key"}`, ErrorTypeQuotaExceeded},
		{"invalid", http.StatusOK, `{"status": "INVALID_REQUEST"}`, ErrorTypeInvalidRequest},
		{"unknown status", http.StatusOK, `{"status": "UNKNOWN_ERROR"}`, ErrorTypeUnknown},
		{"http 429", http.StatusTooManyRequests, ``, ErrorTypeRateLimit},
		{"http 503", http.StatusServiceUnavailable, ``, ErrorTypeNetworkError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newGoogleTestServer(t, tc.status, tc.body, nil)
			g := NewGoogleMapsGeocoder("test-key", WithGoogleBaseURL(srv.URL))

			_, err := g.Geocode(context.Background(), "123 Main St")

			var geoErr *GeocodingError
			require.ErrorAs(t, err, &geoErr)
			assert.Equal(t, tc.want, geoErr.Type)
		})
	}
}

func TestGoogleMissingKey(t *testing.T) {
	_, err := NewGoogleMapsGeocoder("").Geocode(context.Background(), "123 Main St")
	assert.True(t, IsQuotaExceededError(err))
}

func TestGoogleTraceRedactsKey(t *testing.T) {
	srv := newGoogleTestServer(t, http.StatusOK, googleOKResponse, nil)

	var trace bytes.Buffer

	g := NewGoogleMapsGeocoder("secret-key", WithGoogleBaseURL(srv.URL), WithGoogleTrace(&trace))

	_, err := g.Geocode(context.Background(), "123 Main St")
	require.NoError(t, err)

	assert.Contains(t, trace.String(), "Main")
	assert.NotContains(t, trace.String(), "secret-key")
}

func TestGoogleTransportError(t *testing.T) {
	srv := newGoogleTestServer(t, http.StatusOK, googleOKResponse, nil)
	srv.Close()

	_, err := NewGoogleMapsGeocoder("test-key", WithGoogleBaseURL(srv.URL)).Geocode(context.Background(), "123 Main St")

	var geoErr *GeocodingError
	require.ErrorAs(t, err, &geoErr)
	assert.Equal(t, ErrorTypeNetworkError, geoErr.Type)
}
