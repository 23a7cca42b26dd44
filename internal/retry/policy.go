// Package retry implements the retry-eligibility decision and the
// jittered exponential backoff delay of spec.md §4.3, grounded on
// original_source/retry_policy.hpp's RetryPolicy with its process-seeded
// jitter source replaced by a single shared *rand.Rand (spec.md §9: "Use a
// process-wide seeded generator shared under a lightweight lock, not a
// fresh seed per call").
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"httpcore/internal/herr"
)

// Policy holds the configuration spec.md §3 calls "Retry state" minus the
// per-call attempt counter, which lives in State.
type Policy struct {
	MaxAttempts           int
	InitialDelay          time.Duration
	MaxDelay              time.Duration
	BackoffFactor         float64
	RetryOnTimeout        bool
	RetryOnConnectionErr  bool
	RetryOnServerError    bool
}

// State is "one instance per top-level execute call" (spec.md §3).
type State struct {
	policy  Policy
	attempt int // 0-based, count of attempts already made
}

// NewState starts a fresh attempt counter for one top-level Execute call.
func (p Policy) NewState() *State { return &State{policy: p} }

// Reset zeroes the attempt counter, supplementing the original's
// RetryPolicy::reset() (original_source/retry_policy.hpp) for callers that
// keep a *State around across independent calls instead of allocating a
// fresh one each time.
func (s *State) Reset() { s.attempt = 0 }

// Attempt returns the current 0-based attempt count.
func (s *State) Attempt() int { return s.attempt }

// ShouldRetry decides retry eligibility per spec.md §4.3: attempt count
// must be below MaxAttempts, and err/status must classify as one of the
// three retriable categories. Classification goes through herr.KindOf and
// net.Error.Timeout(), never message substring matching (spec.md §9).
func (s *State) ShouldRetry(err error, statusCode int) bool {
	if s.attempt >= s.policy.MaxAttempts {
		return false
	}

	if err != nil {
		kind := herr.KindOf(err)
		if s.policy.RetryOnTimeout && (kind == herr.KindTimeout || herr.IsTimeout(err)) {
			return true
		}
		if s.policy.RetryOnConnectionErr && (kind == herr.KindConnect || kind == herr.KindResolve) {
			return true
		}
		return false
	}

	if s.policy.RetryOnServerError && statusCode >= 500 && statusCode < 600 {
		return true
	}

	return false
}

// Advance records that another attempt has been consumed. Callers invoke
// it once ShouldRetry has returned true and before recursing into the next
// attempt.
func (s *State) Advance() { s.attempt++ }

// Delay computes the backoff for the state's current attempt, per spec.md
// §4.3 and the testable property in §8: for attempt 0 it returns
// InitialDelay; for attempt k>=1 it computes
// base = InitialDelay * BackoffFactor^k, multiplies by a uniform jitter in
// [0.75, 1.25], then caps at MaxDelay.
func (s *State) Delay() time.Duration {
	return delay(s.policy, s.attempt)
}

func delay(p Policy, attempt int) time.Duration {
	if attempt == 0 {
		return p.InitialDelay
	}

	base := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	jittered := base * jitter()

	d := time.Duration(jittered)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// sharedRand is the process-wide seeded generator spec.md §9 asks for,
// guarded by a lightweight mutex rather than reseeded per call.
var (
	randMu     sync.Mutex
	sharedRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func jitter() float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return 0.75 + sharedRand.Float64()*0.5
}
