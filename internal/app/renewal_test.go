package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenewalTimer_FiresOnce(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	timer := NewRenewalTimer(mock, 10*time.Second, func(uint64) { fired.Add(1) })

	timer.Arm()
	assert.True(t, timer.Armed())

	mock.Add(9 * time.Second)
	assert.Zero(t, fired.Load())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, timer.Armed())

	mock.Add(time.Minute)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestRenewalTimer_Cancel(t *testing.T) {
	mock := clock.NewMock()
	var fired atomic.Int32
	timer := NewRenewalTimer(mock, time.Second, func(uint64) { fired.Add(1) })

	timer.Arm()
	timer.Cancel()
	assert.False(t, timer.Armed())

	mock.Add(time.Minute)
	time.Sleep(5 * time.Millisecond)
	assert.Zero(t, fired.Load())

	// Cancel on a disarmed timer is safe.
	timer.Cancel()
}

func TestRenewalTimer_RearmInvalidatesPrevious(t *testing.T) {
	mock := clock.NewMock()
	gens := make(chan uint64, 4)
	timer := NewRenewalTimer(mock, time.Second, func(gen uint64) { gens <- gen })

	timer.Arm()
	mock.Add(500 * time.Millisecond)
	timer.Arm()

	mock.Add(600 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, gens)

	mock.Add(500 * time.Millisecond)
	select {
	case gen := <-gens:
		assert.True(t, timer.Current(gen))
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRenewalTimer_DefaultInterval(t *testing.T) {
	timer := NewRenewalTimer(clock.NewMock(), 0, func(uint64) {})
	assert.Equal(t, DefaultRenewalInterval, timer.Interval())
}
