// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEligibility(t *testing.T) {
	now := time.Date(2016, 3, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		visited *time.Time
		allowed bool
		text    string
	}{
		{name: "never visited", allowed: true},
		{name: "one hour ago", visited: ptrTime(now.Add(-time.Hour)), allowed: false, text: "1 hour ago"},
		{name: "just under a day", visited: ptrTime(now.Add(-VisitTimeout + time.Second)), allowed: false},
		{name: "exactly a day", visited: ptrTime(now.Add(-VisitTimeout)), allowed: true, text: "1 day ago"},
		{name: "three days ago", visited: ptrTime(now.Add(-72 * time.Hour)), allowed: true, text: "3 days ago"},
		{name: "in the future", visited: ptrTime(now.Add(time.Hour)), allowed: false, text: "now"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := CheckEligibility(Address{VisitedAt: tc.visited}, now)

			assert.Equal(t, tc.allowed, e.Allowed)

			if tc.text != "" {
				assert.Equal(t, tc.text, e.ElapsedText)
			}

			if tc.visited == nil {
				assert.Zero(t, e.Elapsed)
				assert.Empty(t, e.ElapsedText)
			}
		})
	}
}

func TestEligibilityError(t *testing.T) {
	now := time.Date(2016, 3, 2, 12, 0, 0, 0, time.UTC)

	e := CheckEligibility(Address{VisitedAt: ptrTime(now.Add(-2 * time.Hour))}, now)
	require.False(t, e.Allowed)

	err := e.Err()

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, VisitNotAllowed, ce.Kind)
	assert.Equal(t, "Visit not allowed", ce.Title)
	assert.Equal(t,
		"You can't canvass the same address so soon after it was last canvassed.\n\nThis address was last canvassed 2 hours ago.",
		ce.Message,
	)

	allowed := CheckEligibility(Address{}, now)
	assert.NoError(t, allowed.Err())
	assert.Empty(t, allowed.Message())
}

func ptrTime(t time.Time) *time.Time { return &t }
