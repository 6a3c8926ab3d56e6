package trade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_FixedWait(t *testing.T) {
	p := Policy{Delay: 2 * time.Second, Backoff: BackoffFixed}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, 2*time.Second, p.Wait(attempt))
	}
}

func TestPolicy_ExponentialWait(t *testing.T) {
	p := Policy{Delay: time.Second, MaxDelay: 10 * time.Second, Backoff: BackoffExponential}

	assert.Equal(t, 1*time.Second, p.Wait(1))
	assert.Equal(t, 2*time.Second, p.Wait(2))
	assert.Equal(t, 4*time.Second, p.Wait(3))
	assert.Equal(t, 8*time.Second, p.Wait(4))
	assert.Equal(t, 10*time.Second, p.Wait(5))
	assert.Equal(t, 10*time.Second, p.Wait(60))
}

func TestPolicy_ExponentialWithoutCap(t *testing.T) {
	p := Policy{Delay: time.Second, Backoff: BackoffExponential}
	assert.Equal(t, 16*time.Second, p.Wait(5))
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))

	unbounded := Policy{}
	assert.False(t, unbounded.Exhausted(1_000_000))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxAttempts: -1}.Validate())
	assert.Error(t, Policy{Delay: -time.Second}.Validate())
	assert.Error(t, Policy{Backoff: "linear"}.Validate())
}
