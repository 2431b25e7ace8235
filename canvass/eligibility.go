// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"time"

	"github.com/dustin/go-humanize"
)

// VisitTimeout is how long an address is locked after a canvass visit.
const VisitTimeout = 24 * time.Hour

// Eligibility is the outcome of the revisit rule for one address.
type Eligibility struct {
	Allowed bool `json:"allowed"`
	// Elapsed and ElapsedText are only set when the address has a last visit.
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	ElapsedText string        `json:"elapsed_text,omitempty"`
}

// CheckEligibility decides whether addr may be submitted as a new canvass
// visit at now.
func CheckEligibility(addr Address, now time.Time) Eligibility {
	if addr.VisitedAt == nil {
		return Eligibility{Allowed: true}
	}

	visited := *addr.VisitedAt

	elapsed := now.Sub(visited)
	if elapsed < 0 {
		// clock skew: a visit "in the future" just happened
		elapsed = 0
		visited = now
	}

	return Eligibility{
		Allowed:     elapsed >= VisitTimeout,
		Elapsed:     elapsed,
		ElapsedText: humanize.RelTime(visited, now, "ago", "from now"),
	}
}

// Message is the explanation shown when the visit is not allowed.
func (e Eligibility) Message() string {
	if e.Allowed {
		return ""
	}

	return "You can't canvass the same address so soon after it was last canvassed.\n\n" +
		"This address was last canvassed " + e.ElapsedText + "."
}

// Err returns a VisitNotAllowed *Error when the visit is not allowed, else nil.
func (e Eligibility) Err() error {
	if e.Allowed {
		return nil
	}

	return &Error{Kind: VisitNotAllowed, Title: titleVisitNotAllowed, Message: e.Message()}
}
