package locker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 2*time.Second, p.InitialDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)
	assert.Equal(t, 2.0, p.BackoffFactor)
}

func TestRetryPolicyFor(t *testing.T) {
	assert.Equal(t, 3, RetryPolicyFor(3).MaxRetries)
	assert.Equal(t, DefaultRetryPolicy().MaxRetries, RetryPolicyFor(0).MaxRetries)
	assert.Equal(t, DefaultRetryPolicy().MaxRetries, RetryPolicyFor(-1).MaxRetries)
}

func TestNextDelayExponential(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 2*time.Second, p.NextDelay(1))
	assert.Equal(t, 4*time.Second, p.NextDelay(2))
	assert.Equal(t, 8*time.Second, p.NextDelay(3))
	assert.Equal(t, 16*time.Second, p.NextDelay(4))
}

func TestNextDelayClampsAtMax(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Minute, p.NextDelay(10))
}

func TestNextDelayDefensiveInputs(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, p.NextDelay(1), p.NextDelay(0))
	assert.Equal(t, p.NextDelay(1), p.NextDelay(-3))

	zero := RetryPolicy{}
	assert.Equal(t, time.Second, zero.NextDelay(1))
	assert.Equal(t, 2*time.Second, zero.NextDelay(2))
}
