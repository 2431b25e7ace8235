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
	"strconv"
	"strings"
	"time"

	"github.com/fieldthebern/groundgame/utils/httputils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Person is a resident associated with an address by the address service.
type Person struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	PartyAffiliation string `json:"party_affiliation,omitempty"`
	CanvassResponse  string `json:"canvass_response,omitempty"`
}

// Name returns the full name of the person.
func (p Person) Name() string {
	return joinNonEmpty(" ", p.FirstName, p.LastName)
}

// LookupResult is the answer of the address service. Address is nil when no
// matching address exists yet.
type LookupResult struct {
	Address *Address `json:"address,omitempty"`
	People  []Person `json:"people"`
}

// AddressService finds an existing address, with its residents and visit
// history, matching a candidate. Failures are returned as *Error with Kind
// RemoteLookupFailure. A nil result without error is treated as no match.
type AddressService interface {
	Lookup(ctx context.Context, candidate Address) (*LookupResult, error)
}

// HTTPAddressService is the REST client of the address service.
type HTTPAddressService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ServiceOption configures an HTTPAddressService.
type ServiceOption func(*HTTPAddressService)

// WithServiceTimeout sets the per request timeout.
func WithServiceTimeout(d time.Duration) ServiceOption {
	return func(s *HTTPAddressService) { s.httpClient.Timeout = d }
}

// WithServiceRateLimit caps requests per second. Zero disables the limit.
func WithServiceRateLimit(perSecond float64) ServiceOption {
	return func(s *HTTPAddressService) {
		if perSecond <= 0 {
			s.limiter = nil

			return
		}

		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithServiceTrace dumps every request and response to w.
func WithServiceTrace(w io.Writer) ServiceOption {
	return func(s *HTTPAddressService) {
		s.httpClient.Transport = &httputils.LoggingRoundTripper{
			Transport: s.httpClient.Transport,
			Writer:    w,
			DumpBody:  true,
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *HTTPAddressService) { s.logger = l }
}

// NewHTTPAddressService creates a client for the address service at baseURL,
// authenticating with a bearer token when one is given.
func NewHTTPAddressService(baseURL, token string, opts ...ServiceOption) *HTTPAddressService {
	headers := map[string]string{
		"Accept": "application/json",
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	s := &HTTPAddressService{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &httputils.AppendRequestHeadersRoundTripper{
				Transport: http.DefaultTransport,
				Headers:   headers,
			},
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type resource struct {
	Type       string          `json:"type"`
	ID         json.RawMessage `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

type lookupResponse struct {
	Data     *resource  `json:"data"`
	Included []resource `json:"included"`
}

type apiErrors struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Lookup implements AddressService.
func (s *HTTPAddressService) Lookup(ctx context.Context, candidate Address) (*LookupResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, lookupFailure("The address service is busy. Please try again.", err)
		}
	}

	reqURL := s.baseURL + "/addresses?" + lookupQuery(candidate).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building lookup request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("address lookup request failed", zap.Error(err))

		return nil, lookupFailure("Could not reach the address service. Please try again.", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, lookupFailure("Could not read the address service response. Please try again.", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, lookupFailure("The address service sent an unexpected response.", err)
	}

	result := &LookupResult{People: []Person{}}

	if payload.Data != nil {
		addr, err := ParseAddress(rawID(payload.Data.ID), payload.Data.Attributes)
		if err != nil {
			return nil, lookupFailure("The address service sent an unexpected response.", err)
		}

		result.Address = &addr
	}

	for _, inc := range payload.Included {
		if inc.Type != "people" {
			continue
		}

		var p Person
		if err := json.Unmarshal(inc.Attributes, &p); err != nil {
			s.logger.Debug("skipping malformed person", zap.Error(err))

			continue
		}

		if id := rawID(inc.ID); id != nil {
			p.ID = *id
		}

		result.People = append(result.People, p)
	}

	s.logger.Debug("address lookup",
		zap.Bool("found", result.Address != nil),
		zap.Int("people", len(result.People)),
	)

	return result, nil
}

func lookupQuery(a Address) url.Values {
	q := url.Values{}

	if a.Point != nil {
		q.Set("latitude", strconv.FormatFloat(a.Point.Lat, 'f', -1, 64))
		q.Set("longitude", strconv.FormatFloat(a.Point.Lng, 'f', -1, 64))
	}

	set := func(key string, v *string) {
		if v != nil {
			q.Set(key, *v)
		}
	}

	set("street_1", a.Street1)
	set("street_2", a.Street2)
	set("city", a.City)
	set("state_code", a.StateCode)
	set("zip_code", a.ZipCode)

	return q
}

func decodeAPIError(status int, body []byte) *Error {
	var payload apiErrors
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		e := payload.Errors[0]

		title := e.Title
		if title == "" {
			title = titleLookupFailed
		}

		return &Error{
			Kind:    RemoteLookupFailure,
			Title:   title,
			Message: e.Detail,
			Err:     fmt.Errorf("address service returned status %d", status),
		}
	}

	return lookupFailure(
		fmt.Sprintf("The address service returned status %d. Please try again.", status),
		fmt.Errorf("address service returned status %d", status),
	)
}

func lookupFailure(message string, cause error) *Error {
	return &Error{Kind: RemoteLookupFailure, Title: titleLookupFailed, Message: message, Err: cause}
}
