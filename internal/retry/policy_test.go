package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"httpcore/internal/herr"
)

func basePolicy() Policy {
	return Policy{
		MaxAttempts:          3,
		InitialDelay:         100 * time.Millisecond,
		MaxDelay:              10 * time.Second,
		BackoffFactor:        2.0,
		RetryOnTimeout:       true,
		RetryOnConnectionErr: true,
		RetryOnServerError:   true,
	}
}

func TestShouldRetryRespectsMaxAttempts(t *testing.T) {
	s := basePolicy().NewState()
	err := herr.New(herr.KindTimeout, "read", nil)

	for i := 0; i < 3; i++ {
		assert.True(t, s.ShouldRetry(err, 0))
		s.Advance()
	}
	assert.False(t, s.ShouldRetry(err, 0))
}

func TestShouldRetryOnlyClassifiedKinds(t *testing.T) {
	s := basePolicy().NewState()

	assert.True(t, s.ShouldRetry(herr.New(herr.KindTimeout, "op", nil), 0))
	assert.True(t, s.ShouldRetry(herr.New(herr.KindConnect, "op", nil), 0))
	assert.True(t, s.ShouldRetry(herr.New(herr.KindResolve, "op", nil), 0))
	assert.False(t, s.ShouldRetry(herr.New(herr.KindProtocol, "op", nil), 0))
	assert.False(t, s.ShouldRetry(herr.New(herr.KindInvalidURL, "op", nil), 0))
}

func TestShouldRetryOnServerErrorStatusWithNilErr(t *testing.T) {
	s := basePolicy().NewState()

	assert.True(t, s.ShouldRetry(nil, 503))
	assert.False(t, s.ShouldRetry(nil, 200))
	assert.False(t, s.ShouldRetry(nil, 404))
}

func TestShouldRetryHonorsDisabledCategories(t *testing.T) {
	p := basePolicy()
	p.RetryOnServerError = false
	s := p.NewState()

	assert.False(t, s.ShouldRetry(nil, 503))
}

func TestDelayAttemptZeroIsInitialDelay(t *testing.T) {
	s := basePolicy().NewState()
	assert.Equal(t, 100*time.Millisecond, s.Delay())
}

func TestDelayAtAttemptTwoStaysWithinJitterBounds(t *testing.T) {
	p := basePolicy()
	s := p.NewState()
	s.Advance()
	s.Advance()

	d := s.Delay()
	assert.GreaterOrEqual(t, d, 300*time.Millisecond)
	assert.LessOrEqual(t, d, 500*time.Millisecond)
}

func TestDelayCapsAtMaxDelay(t *testing.T) {
	p := basePolicy()
	p.MaxDelay = 200 * time.Millisecond
	s := p.NewState()
	s.Advance()
	s.Advance()
	s.Advance()
	s.Advance()

	assert.LessOrEqual(t, s.Delay(), 200*time.Millisecond)
}

func TestResetZeroesAttemptCounter(t *testing.T) {
	s := basePolicy().NewState()
	s.Advance()
	s.Advance()
	assert.Equal(t, 2, s.Attempt())

	s.Reset()
	assert.Equal(t, 0, s.Attempt())
}
