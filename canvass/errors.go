// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies the user-facing failures of the canvass flow.
type Kind int

const (
	// EmptyAddress no street was entered.
	EmptyAddress Kind = iota + 1
	// TooFarFromUser the address resolved outside the filter radius.
	TooFarFromUser
	// NoLocationFound the address could not be located.
	NoLocationFound
	// GeocodeFailure the geocoder itself failed.
	GeocodeFailure
	// RemoteLookupFailure the address service failed or rejected the lookup.
	RemoteLookupFailure
	// VisitNotAllowed the address was canvassed too recently.
	VisitNotAllowed
)

func (k Kind) String() string {
	switch k {
	case EmptyAddress:
		return "empty_address"
	case TooFarFromUser:
		return "too_far_from_user"
	case NoLocationFound:
		return "no_location_found"
	case GeocodeFailure:
		return "geocode_failure"
	case RemoteLookupFailure:
		return "remote_lookup_failure"
	case VisitNotAllowed:
		return "visit_not_allowed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a recoverable failure with a title and message meant to be shown
// to the canvasser as is.
type Error struct {
	Kind    Kind
	Title   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Message, e.Err)
	}

	return e.Title + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

// ErrSuperseded is returned by a resolution that was cancelled because a newer
// one started.
var ErrSuperseded = errors.New("canvass: resolution superseded by a newer request")

const (
	titleMissingAddress  = "Missing Address Info"
	titleNoLocation      = "No location was found"
	titleTooFar          = "Too far from location"
	titleVisitNotAllowed = "Visit not allowed"
	titleLookupFailed    = "Address lookup failed"

	msgCheckAddress = "Please check the entered address and try again"
)

func errEmptyAddress() *Error {
	return &Error{Kind: EmptyAddress, Title: titleMissingAddress, Message: "Please enter a street address."}
}

func errTooFar(thoroughfare string) *Error {
	return &Error{Kind: TooFarFromUser, Title: titleTooFar, Message: thoroughfare + " is too far for you to submit. Try again."}
}

func errStreetNotFound(street string) *Error {
	return &Error{Kind: NoLocationFound, Title: titleNoLocation, Message: street + " could not be found. Try again."}
}

func errNoLocation(cause error) *Error {
	return &Error{Kind: NoLocationFound, Title: titleNoLocation, Message: msgCheckAddress, Err: cause}
}

func errGeocodeFailure(cause error) *Error {
	return &Error{Kind: GeocodeFailure, Title: titleNoLocation, Message: msgCheckAddress, Err: cause}
}

// GeocodingError is a provider-level geocoding failure.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies provider-level geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit rate limit reached.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded quota exceeded or key denied.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout connection or deadline timeout.
	ErrorTypeTimeout
	// ErrorTypeNotFound location not found.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest malformed request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError upstream unavailable.
	ErrorTypeNetworkError
)

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// IsRateLimitError reports whether err is a rate limit failure.
func IsRateLimitError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err is a quota failure.
func IsQuotaExceededError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeQuotaExceeded
	}

	// Google Maps wording
	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeTimeout
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// ClassifyHTTPError maps an HTTP status from a geocoding provider to a
// GeocodingError.
func ClassifyHTTPError(statusCode int, _ string) *GeocodingError {
	switch statusCode {
	case http.StatusTooManyRequests: // 429
		return &GeocodingError{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit reached",
		}
	case http.StatusForbidden: // 403
		return &GeocodingError{
			Type:    ErrorTypeQuotaExceeded,
			Message: "quota exceeded or access denied",
		}
	case http.StatusBadRequest: // 400
		return &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: "invalid request",
		}
	case http.StatusNotFound: // 404
		return &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: "location not found",
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &GeocodingError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("HTTP error %d", statusCode),
		}
	}
}

// classifyStatus maps a Google Geocoding API status field to a GeocodingError.
func classifyStatus(status, message string) *GeocodingError {
	msg := "google maps status: " + status
	if message != "" {
		msg += " (" + message + ")"
	}

	switch status {
	case "OVER_QUERY_LIMIT":
		return &GeocodingError{Type: ErrorTypeRateLimit, Message: msg}
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: msg}
	case "INVALID_REQUEST":
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: msg}
	default:
		return &GeocodingError{Type: ErrorTypeUnknown, Message: msg}
	}
}

// classifyTransportError wraps a failed round trip.
func classifyTransportError(err error) *GeocodingError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &GeocodingError{Type: ErrorTypeTimeout, Message: "geocoding request timed out", Err: err}
	}

	return &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
}
