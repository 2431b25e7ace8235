// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type errorCheckTestCase struct {
	name string
	err  error
	want bool
}

func runErrorCheckTest(t *testing.T, tests []errorCheckTestCase, checkFunc func(error) bool) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkFunc(tt.err); got != tt.want {
				t.Errorf("checkFunc() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"rate limit error type", &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate limit reached"}, true},
		{"wrapped in canvass error", errGeocodeFailure(&GeocodingError{Type: ErrorTypeRateLimit}), true},
		{"message contains too many requests", errors.New("too many requests"), true},
		{"message contains 429", errors.New("geocoder returned status 429"), true},
		{"other error type", &GeocodingError{Type: ErrorTypeNotFound, Message: "not found"}, false},
		{"unrelated error", errors.New("some other error"), false},
	}, IsRateLimitError)
}

func TestIsQuotaExceededError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"quota error type", &GeocodingError{Type: ErrorTypeQuotaExceeded}, true},
		{"google wording", errors.New("status OVER_QUERY_LIMIT"), true},
		{"message contains quota exceeded", errors.New("Quota exceeded for project"), true},
		{"rate limit type", &GeocodingError{Type: ErrorTypeRateLimit}, false},
		{"unrelated error", errors.New("some other error"), false},
	}, IsQuotaExceededError)
}

func TestIsTimeoutError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"timeout error type", &GeocodingError{Type: ErrorTypeTimeout}, true},
		{"deadline exceeded", fmt.Errorf("request: %w", context.DeadlineExceeded), true},
		{"message contains timeout", errors.New("i/o timeout"), true},
		{"network error type", &GeocodingError{Type: ErrorTypeNetworkError}, false},
	}, IsTimeoutError)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusForbidden, ErrorTypeQuotaExceeded},
		{http.StatusBadRequest, ErrorTypeInvalidRequest},
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusBadGateway, ErrorTypeNetworkError},
		{http.StatusGatewayTimeout, ErrorTypeNetworkError},
		{http.StatusTeapot, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := ClassifyHTTPError(tt.status, "").Type; got != tt.want {
				t.Errorf("ClassifyHTTPError(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	if got := classifyTransportError(context.DeadlineExceeded).Type; got != ErrorTypeTimeout {
		t.Errorf("deadline: got %v, want %v", got, ErrorTypeTimeout)
	}

	if got := classifyTransportError(errors.New("connection refused")).Type; got != ErrorTypeNetworkError {
		t.Errorf("refused: got %v, want %v", got, ErrorTypeNetworkError)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("submit: %w", errTooFar("Broadway"))); got != TooFarFromUser {
		t.Errorf("KindOf() = %v, want %v", got, TooFarFromUser)
	}

	if got := KindOf(ErrSuperseded); got != 0 {
		t.Errorf("KindOf(ErrSuperseded) = %v, want 0", got)
	}

	if got := KindOf(nil); got != 0 {
		t.Errorf("KindOf(nil) = %v, want 0", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := errEmptyAddress()
	if got, want := err.Error(), "Missing Address Info: Please enter a street address."; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := errNoLocation(errors.New("boom"))
	if !errors.Is(wrapped, wrapped.Err) {
		t.Error("Unwrap() lost the cause")
	}

	if got, want := TooFarFromUser.String(), "too_far_from_user"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
