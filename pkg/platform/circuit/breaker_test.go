package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New("sessions")
	assert.Equal(t, "sessions", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	b := New("sessions", WithFailureThreshold(3))

	for range 2 {
		degraded, change := b.RecordFailure()
		assert.False(t, degraded)
		assert.False(t, change.Opened)
	}

	degraded, change := b.RecordFailure()
	assert.True(t, degraded)
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())

	t.Run("further failures report no transition", func(t *testing.T) {
		degraded, change := b.RecordFailure()
		assert.True(t, degraded)
		assert.Equal(t, StateChange{}, change)
	})
}

func TestBreakerSuccessInterruptsFailureRun(t *testing.T) {
	b := New("sessions", WithFailureThreshold(2))

	b.RecordFailure()
	healthy, _ := b.RecordSuccess()
	assert.True(t, healthy)
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreakerClosesAfterSuccessRun(t *testing.T) {
	b := New("sessions", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	healthy, change := b.RecordSuccess()
	assert.False(t, healthy)
	assert.False(t, change.Closed)

	t.Run("a failure restarts the success run", func(t *testing.T) {
		b.RecordFailure()
		healthy, _ := b.RecordSuccess()
		assert.False(t, healthy)
	})

	healthy, change = b.RecordSuccess()
	assert.True(t, healthy)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerReset(t *testing.T) {
	b := New("sessions", WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())

	degraded, _ := b.RecordFailure()
	assert.True(t, degraded, "threshold still applies after reset")
}

func TestBreakerClampsThresholds(t *testing.T) {
	b := New("sessions", WithFailureThreshold(0), WithSuccessThreshold(-1))
	_, change := b.RecordFailure()
	assert.True(t, change.Opened)
	_, change = b.RecordSuccess()
	assert.True(t, change.Closed)
}
