// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fieldthebern/groundgame/spatial"
	"go.uber.org/zap"
)

// DefaultFilterRadius is how far, in meters, a resolved address may be from
// the canvasser. 200 meters is about a radius of 4 NYC city blocks.
const DefaultFilterRadius = 200.0

// locationChangeThreshold is the movement, in meters, after which the current
// placemark is considered stale.
const locationChangeThreshold = 1.0

// ResolveRequest is the input of AddressResolver.Resolve.
type ResolveRequest struct {
	// Caller identifies the canvasser. A resolution only supersedes the
	// outstanding one of the same caller.
	Caller string `json:"caller,omitempty"`
	Street string `json:"street"`
	// City and State come from the placemark of the canvasser's position.
	City             string         `json:"city"`
	State            string         `json:"state"`
	UserLocation     spatial.Point  `json:"user_location"`
	PreviousLocation *spatial.Point `json:"previous_location,omitempty"`
}

// Resolution is an accepted address location.
type Resolution struct {
	Point     spatial.Point `json:"point"`
	Placemark Placemark     `json:"placemark"`
	// PreviousLocation is kept for auditing only.
	PreviousLocation *spatial.Point `json:"previous_location,omitempty"`
	Distance         float64        `json:"distance_meters"`
	LocationUpdated  bool           `json:"location_updated"`
}

// AddressResolver turns typed street addresses into verified locations near
// the canvasser.
//
// Starting a resolution cancels the one still in flight for the same
// caller, which then returns ErrSuperseded. Callers should still disable
// duplicate submissions while InFlight reports true.
type AddressResolver struct {
	geocoder Geocoder
	radius   float64
	logger   *zap.Logger

	inFlight atomic.Int32

	mu      sync.Mutex
	seq     uint64
	pending map[string]pendingResolution
}

type pendingResolution struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// ResolverOption configures an AddressResolver.
type ResolverOption func(*AddressResolver)

// WithFilterRadius sets the maximum distance in meters between the canvasser
// and the resolved address.
func WithFilterRadius(meters float64) ResolverOption {
	return func(r *AddressResolver) { r.radius = meters }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *AddressResolver) { r.logger = l }
}

// NewAddressResolver creates a resolver backed by geocoder.
func NewAddressResolver(geocoder Geocoder, opts ...ResolverOption) *AddressResolver {
	r := &AddressResolver{
		geocoder: geocoder,
		radius:   DefaultFilterRadius,
		logger:   zap.NewNop(),
		pending:  map[string]pendingResolution{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// FilterRadius returns the configured radius in meters.
func (r *AddressResolver) FilterRadius() float64 {
	return r.radius
}

// InFlight reports whether a resolution is outstanding.
func (r *AddressResolver) InFlight() bool {
	return r.inFlight.Load() > 0
}

// Resolve geocodes the street together with the known city and state, and
// accepts the first candidate if it lies within the filter radius of the
// canvasser. Rejections are returned as *Error.
func (r *AddressResolver) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	street := strings.TrimSpace(req.Street)
	if street == "" {
		return nil, errEmptyAddress()
	}

	ctx, done := r.begin(ctx, req.Caller)
	defer done()

	query := joinNonEmpty(" ", street, req.City, req.State)
	log := r.logger.With(zap.String("address", query))

	placemarks, err := r.geocoder.Geocode(ctx, query)
	if superseded(ctx) {
		log.Debug("resolution superseded")

		return nil, ErrSuperseded
	}

	if err != nil {
		log.Warn("forward geocode failed", zap.Error(err))

		return nil, errGeocodeFailure(err)
	}

	if len(placemarks) == 0 {
		log.Info("no geocoding candidates")

		return nil, errNoLocation(nil)
	}

	res, err := r.accept(street, placemarks[0], req.UserLocation, log)
	if err != nil {
		return nil, err
	}

	if req.PreviousLocation != nil {
		prev := *req.PreviousLocation
		res.PreviousLocation = &prev
	}

	log.Debug("address resolved", zap.Float64("meters", res.Distance))

	return res, nil
}

// Verify re-applies the filter radius to a resolution obtained earlier,
// measured from the canvasser's current location. It returns the resolution
// with its distance recomputed.
func (r *AddressResolver) Verify(street string, res Resolution, user spatial.Point) (*Resolution, error) {
	street = strings.TrimSpace(street)
	if street == "" {
		return nil, errEmptyAddress()
	}

	candidate := res.Placemark
	candidate.Point = &res.Point

	verified, err := r.accept(street, candidate, user, r.logger.With(zap.String("address", street)))
	if err != nil {
		return nil, err
	}

	verified.PreviousLocation = res.PreviousLocation

	return verified, nil
}

// accept checks that candidate lies within the filter radius of user.
func (r *AddressResolver) accept(street string, candidate Placemark, user spatial.Point, log *zap.Logger) (*Resolution, error) {
	if candidate.Point == nil {
		return nil, errNoLocation(errors.New("candidate has no coordinate"))
	}

	meters := candidate.Point.HaversineDistance(&user)
	if meters > r.radius {
		log.Info("candidate outside filter radius",
			zap.Float64("meters", meters),
			zap.Float64("radius", r.radius),
			zap.String("thoroughfare", candidate.Thoroughfare),
		)

		if candidate.Thoroughfare == "" {
			return nil, errStreetNotFound(street)
		}

		return nil, errTooFar(candidate.Thoroughfare)
	}

	return &Resolution{
		Point:           *candidate.Point,
		Placemark:       candidate,
		Distance:        meters,
		LocationUpdated: true,
	}, nil
}

// begin registers a new in-flight resolution for caller, cancelling the
// previous one of the same caller.
func (r *AddressResolver) begin(parent context.Context, caller string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	r.mu.Lock()
	if prev, ok := r.pending[caller]; ok {
		prev.cancel(ErrSuperseded)
	}

	r.seq++
	seq := r.seq
	r.pending[caller] = pendingResolution{seq: seq, cancel: cancel}
	r.mu.Unlock()

	r.inFlight.Add(1)

	return ctx, func() {
		r.mu.Lock()
		if cur, ok := r.pending[caller]; ok && cur.seq == seq {
			delete(r.pending, caller)
		}
		r.mu.Unlock()

		cancel(nil)
		r.inFlight.Add(-1)
	}
}

func superseded(ctx context.Context) bool {
	return ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrSuperseded)
}

// ReverseResolve returns the first placemark at point, used to pre-fill the
// street, city and state of the canvasser's position.
func (r *AddressResolver) ReverseResolve(ctx context.Context, point spatial.Point) (*Placemark, error) {
	placemarks, err := r.geocoder.ReverseGeocode(ctx, point)
	if err != nil {
		r.logger.Warn("reverse geocode failed", zap.Stringer("point", point), zap.Error(err))

		return nil, errGeocodeFailure(err)
	}

	if len(placemarks) == 0 {
		return nil, errNoLocation(nil)
	}

	pm := placemarks[0]

	return &pm, nil
}

// NeedsReverseGeocode reports whether the placemark for the canvasser's
// position must be refreshed: there is none yet, or the position moved by at
// least a meter.
func NeedsReverseGeocode(current, previous *spatial.Point, placemark *Placemark) bool {
	if placemark == nil {
		return true
	}

	if current == nil || previous == nil {
		return false
	}

	return current.HaversineDistance(previous) >= locationChangeThreshold
}
