// Package models defines rate limit classes, limits and check results.
package models

import (
	"strings"
	"time"
)

// Class groups routes that share one limit.
type Class string

const (
	// ClassAuth covers registration and login.
	ClassAuth Class = "auth"
)

// Limit is a sliding-window allowance.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"`
}

// ExceededResponse is the 429 body. It keeps the shape of the shared error
// envelope and adds retry_after.
type ExceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}

// Key builds the bucket key for a client within a class. Client identifiers
// cannot inject extra key segments.
func Key(class Class, client string) string {
	return "ratelimit:" + string(class) + ":" + strings.ReplaceAll(client, ":", "_")
}
