// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"strings"
	"time"

	"github.com/fieldthebern/groundgame/spatial"
	"go.uber.org/zap"
)

// SubmitRequest is a canvasser's request to start a visit at an address.
type SubmitRequest struct {
	// Caller identifies the canvasser, see ResolveRequest.
	Caller string `json:"caller,omitempty"`
	Street string `json:"street"`
	Unit   string `json:"unit"`
	// City and State come from the placemark of the canvasser's position.
	City             string         `json:"city"`
	State            string         `json:"state"`
	UserLocation     spatial.Point  `json:"user_location"`
	PreviousLocation *spatial.Point `json:"previous_location,omitempty"`
	// Resolution may carry an earlier accepted resolution for the same
	// street; when its LocationUpdated is set geocoding is skipped but the
	// filter radius is checked again against UserLocation.
	Resolution *Resolution `json:"resolution,omitempty"`
}

// SubmitOutcome is the address to canvass, with its known residents.
type SubmitOutcome struct {
	Address     Address     `json:"address"`
	People      []Person    `json:"people"`
	Existing    bool        `json:"existing"`
	Resolution  Resolution  `json:"resolution"`
	Eligibility Eligibility `json:"eligibility"`
}

// Submitter runs the submission flow: resolve the address if needed, look it
// up remotely, and apply the revisit rule.
type Submitter struct {
	resolver *AddressResolver
	service  AddressService
	now      func() time.Time
	logger   *zap.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) { s.now = now }
}

// WithSubmitterLogger sets the logger.
func WithSubmitterLogger(l *zap.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = l }
}

// NewSubmitter creates a Submitter.
func NewSubmitter(resolver *AddressResolver, service AddressService, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		resolver: resolver,
		service:  service,
		now:      time.Now,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit runs the flow. Every rejection is an *Error; a superseded
// resolution returns ErrSuperseded.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*SubmitOutcome, error) {
	if strings.TrimSpace(req.Street) == "" {
		return nil, errEmptyAddress()
	}

	var (
		res *Resolution
		err error
	)

	if req.Resolution != nil && req.Resolution.LocationUpdated {
		res, err = s.resolver.Verify(req.Street, *req.Resolution, req.UserLocation)
		if err != nil {
			return nil, err
		}
	} else {
		res, err = s.resolver.Resolve(ctx, ResolveRequest{
			Caller:           req.Caller,
			Street:           req.Street,
			City:             req.City,
			State:            req.State,
			UserLocation:     req.UserLocation,
			PreviousLocation: req.PreviousLocation,
		})
		if err != nil {
			return nil, err
		}
	}

	candidate := NewAddressFromResolution(res, req.Street, req.Unit)

	found, err := s.service.Lookup(ctx, candidate)
	if err != nil {
		s.logger.Warn("address lookup failed", zap.Error(err))

		return nil, err
	}

	if found == nil {
		found = &LookupResult{}
	}

	outcome := &SubmitOutcome{
		Address:    candidate,
		People:     found.People,
		Resolution: *res,
	}

	if found.Address != nil {
		outcome.Address = *found.Address
		outcome.Existing = true
	}

	if outcome.People == nil {
		outcome.People = []Person{}
	}

	outcome.Eligibility = CheckEligibility(outcome.Address, s.now())
	if err := outcome.Eligibility.Err(); err != nil {
		s.logger.Info("visit not allowed",
			zap.String("address", outcome.Address.Title()),
			zap.Duration("elapsed", outcome.Eligibility.Elapsed),
		)

		return nil, err
	}

	return outcome, nil
}
