// Copyright 2025 The GroundGame Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds the coordinate type shared by geocoding, distance
// filtering and address storage.
package spatial

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewPoint returns a Point for the given latitude and longitude.
func NewPoint(lat, lng float64) Point {
	return Point{Lat: lat, Lng: lng}
}

// Valid reports whether the point lies within the WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(res int) (h3.Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("spatial: converting to h3 cell at res %d: %w", res, err)
	}

	return cell, nil
}

// Offset returns the point displaced northward by north meters and eastward
// by east meters. It is accurate for the short displacements used to build
// search radii and fixtures.
func (p Point) Offset(north, east float64) Point {
	dLat := north / earthRadius
	dLng := east / (earthRadius * math.Cos(p.Lat*math.Pi/180))

	return Point{
		Lat: p.Lat + dLat*180/math.Pi,
		Lng: p.Lng + dLng*180/math.Pi,
	}
}
