// Package verify is the boundary to the external face-verification service.
// Providers are interchangeable so the simulated one never leaks into the
// check-in flow.
package verify

import (
	"context"
	"errors"
)

// ErrUpstream means the verification service could not be reached or gave an
// unusable answer. The caller surfaces it with a retry affordance; no
// automatic retry happens here.
var ErrUpstream = errors.New("face verification service unavailable")

// Result is the outcome of a single verification call.
type Result struct {
	Verified bool   `json:"verified"`
	Name     string `json:"name,omitempty"`    // Display name on success
	Message  string `json:"message,omitempty"` // Human-readable reason on failure
}

// Verifier matches a captured image against a student's registered face.
// A single opaque request/response; implementations must honour ctx
// cancellation and deadlines.
type Verifier interface {
	Verify(ctx context.Context, studentID uint, image []byte) (Result, error)
}
