// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"strings"

	"github.com/fieldthebern/groundgame/spatial"
)

// Placemark is a geocoding candidate: address components plus a coordinate.
// Any component may be empty.
type Placemark struct {
	Locality           string         `json:"locality,omitempty"`
	AdministrativeArea string         `json:"administrative_area,omitempty"`
	PostalCode         string         `json:"postal_code,omitempty"`
	Thoroughfare       string         `json:"thoroughfare,omitempty"`
	SubThoroughfare    string         `json:"sub_thoroughfare,omitempty"`
	FormattedAddress   string         `json:"formatted_address,omitempty"`
	Point              *spatial.Point `json:"point,omitempty"`
}

// StreetLine returns "<number> <street>" when both parts are known, else "".
// It is what the street field is pre-filled with after a reverse geocode.
func (p Placemark) StreetLine() string {
	if p.Thoroughfare == "" || p.SubThoroughfare == "" {
		return ""
	}

	return p.SubThoroughfare + " " + p.Thoroughfare
}

// Geocoder resolves free-text addresses and coordinates into placemarks.
// Implementations return an empty slice, not an error, when nothing matches.
type Geocoder interface {
	Geocode(ctx context.Context, address string) ([]Placemark, error)
	ReverseGeocode(ctx context.Context, point spatial.Point) ([]Placemark, error)
}

// ComposeAddressLine joins the street and unit fields the way they are shown
// back to the canvasser for confirmation.
func ComposeAddressLine(street, unit string) string {
	return joinNonEmpty(" ", street, unit)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, sep)
}
