// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fieldthebern/groundgame/spatial"
)

// VisitResult is the outcome of the last canvass visit to an address.
type VisitResult int

const (
	NotVisited VisitResult = iota
	NotHome
	NotInterested
	NotSure
	Interested
)

// VisitResults lists every visit result in display order.
var VisitResults = []VisitResult{NotVisited, NotHome, NotInterested, NotSure, Interested}

// ParseVisitResult maps a wire value to a VisitResult. Unknown values map to
// NotVisited.
func ParseVisitResult(s string) VisitResult {
	switch s {
	case "not_visited":
		return NotVisited
	case "not_home":
		return NotHome
	case "not_interested":
		return NotInterested
	case "interested":
		return Interested
	case "unsure":
		return NotSure
	default:
		return NotVisited
	}
}

// String returns the wire value.
func (r VisitResult) String() string {
	switch r {
	case NotVisited:
		return "not_visited"
	case NotHome:
		return "not_home"
	case NotInterested:
		return "not_interested"
	case NotSure:
		return "unsure"
	case Interested:
		return "interested"
	}

	panic(fmt.Sprintf("canvass: unknown visit result %d", int(r)))
}

// Label returns a human-readable label for the visit result.
func (r VisitResult) Label() string {
	switch r {
	case NotVisited:
		return "Not visited yet"
	case NotHome:
		return "No one was home"
	case NotInterested:
		return "Not interested"
	case NotSure:
		return "Not sure"
	case Interested:
		return "Feelin' the Bern"
	}

	panic(fmt.Sprintf("canvass: unknown visit result %d", int(r)))
}

// MarkerCategory is the map marker tag for an address.
type MarkerCategory string

const (
	MarkerGray      MarkerCategory = "gray"
	MarkerLightBlue MarkerCategory = "light_blue"
	MarkerRed       MarkerCategory = "red"
	MarkerWhite     MarkerCategory = "white"
	MarkerBlue      MarkerCategory = "blue"
)

// Marker returns the marker category for the visit result.
func (r VisitResult) Marker() MarkerCategory {
	switch r {
	case NotVisited:
		return MarkerGray
	case NotHome:
		return MarkerLightBlue
	case NotInterested:
		return MarkerRed
	case NotSure:
		return MarkerWhite
	case Interested:
		return MarkerBlue
	}

	panic(fmt.Sprintf("canvass: unknown visit result %d", int(r)))
}

// MarshalText implements encoding.TextMarshaler.
func (r VisitResult) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (r *VisitResult) UnmarshalText(text []byte) error {
	*r = ParseVisitResult(string(text))

	return nil
}

// Address is a canvassed address. Values are immutable once built: use
// WithResult or WithVisit to derive an updated copy.
type Address struct {
	ID        *string
	Point     *spatial.Point
	Street1   *string
	Street2   *string
	City      *string
	StateCode *string
	ZipCode   *string
	Result    VisitResult
	VisitedAt *time.Time
}

// Title joins the street lines: "street1, street2", either one alone, or "".
func (a Address) Title() string {
	switch {
	case a.Street1 != nil && a.Street2 != nil:
		return *a.Street1 + ", " + *a.Street2
	case a.Street1 != nil:
		return *a.Street1
	case a.Street2 != nil:
		return *a.Street2
	default:
		return ""
	}
}

// Subtitle is the human-readable visit result.
func (a Address) Subtitle() string {
	return a.Result.Label()
}

// MarkerCategory is the map marker tag for the address.
func (a Address) MarkerCategory() MarkerCategory {
	return a.Result.Marker()
}

// Coordinate returns the address location when it is known.
func (a Address) Coordinate() (spatial.Point, bool) {
	if a.Point == nil {
		return spatial.Point{}, false
	}

	return *a.Point, true
}

// WithResult returns a copy of the address with a new visit result.
func (a Address) WithResult(r VisitResult) Address {
	a.Result = r

	return a
}

// WithVisit returns a copy of the address recording a visit at the given time.
func (a Address) WithVisit(r VisitResult, at time.Time) Address {
	a.Result = r
	a.VisitedAt = &at

	return a
}

// NewAddress builds an address from a resolved location and the fields the
// canvasser typed. Blank street lines are treated as absent.
func NewAddress(point spatial.Point, placemark Placemark, street1, street2 string) Address {
	return Address{
		Point:     &point,
		Street1:   optional(street1),
		Street2:   optional(street2),
		City:      optional(placemark.Locality),
		StateCode: optional(placemark.AdministrativeArea),
		ZipCode:   optional(placemark.PostalCode),
		Result:    NotVisited,
	}
}

// NewAddressFromResolution builds the submission candidate for a resolution.
func NewAddressFromResolution(res *Resolution, street1, street2 string) Address {
	return NewAddress(res.Point, res.Placemark, street1, street2)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

var errNotObject = errors.New("canvass: address payload is not a JSON object")

// ParseAddress decodes an address payload. Parsing is lenient: each field is
// read independently and a missing, null or mistyped field is left absent.
// An unknown result becomes NotVisited. The id argument, when non-nil, takes
// precedence over an "id" field in the payload. Only a payload that is not a
// JSON object is an error.
func ParseAddress(id *string, payload []byte) (Address, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return Address{}, errNotObject
	}

	addr := Address{
		ID:        id,
		Street1:   rawString(fields["street_1"]),
		Street2:   rawString(fields["street_2"]),
		City:      rawString(fields["city"]),
		StateCode: rawString(fields["state_code"]),
		ZipCode:   rawString(fields["zip_code"]),
		Result:    NotVisited,
	}

	if addr.ID == nil {
		addr.ID = rawID(fields["id"])
	}

	lat := rawNumber(fields["latitude"])
	lng := rawNumber(fields["longitude"])

	if lat != nil && lng != nil {
		addr.Point = &spatial.Point{Lat: *lat, Lng: *lng}
	}

	if result := rawString(fields["result"]); result != nil {
		addr.Result = ParseVisitResult(*result)
	}

	if visited := rawString(fields["visited_at"]); visited != nil {
		if t, err := time.Parse(time.RFC3339Nano, *visited); err == nil {
			addr.VisitedAt = &t
		}
	}

	return addr, nil
}

// UnmarshalJSON implements json.Unmarshaler with ParseAddress semantics.
func (a *Address) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAddress(nil, data)
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

type addressJSON struct {
	ID        *string  `json:"id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Street1   *string  `json:"street_1,omitempty"`
	Street2   *string  `json:"street_2,omitempty"`
	City      *string  `json:"city,omitempty"`
	StateCode *string  `json:"state_code,omitempty"`
	ZipCode   *string  `json:"zip_code,omitempty"`
	Result    string   `json:"result"`
	VisitedAt *string  `json:"visited_at,omitempty"`
}

// MarshalJSON emits only the fields that are present.
func (a Address) MarshalJSON() ([]byte, error) {
	out := addressJSON{
		ID:        a.ID,
		Street1:   a.Street1,
		Street2:   a.Street2,
		City:      a.City,
		StateCode: a.StateCode,
		ZipCode:   a.ZipCode,
		Result:    a.Result.String(),
	}

	if a.Point != nil {
		out.Latitude = &a.Point.Lat
		out.Longitude = &a.Point.Lng
	}

	if a.VisitedAt != nil {
		s := a.VisitedAt.Format(time.RFC3339Nano)
		out.VisitedAt = &s
	}

	return json.Marshal(out)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func rawString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}

	return &s
}

func rawNumber(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}

	return &f
}

// rawID accepts string and integer ids.
func rawID(raw json.RawMessage) *string {
	if s := rawString(raw); s != nil {
		return s
	}

	if isNull(raw) {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}

	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return nil
	}

	s := n.String()

	return &s
}
