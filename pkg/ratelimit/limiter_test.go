package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayLimiter(t *testing.T) {
	l := NewDelayLimiter(time.Hour)

	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	l.Reset()
	assert.True(t, l.Allow())
	assert.Equal(t, time.Hour, l.Delay())
}

func TestDelayLimiterResetDuringUse(t *testing.T) {
	l := NewDelayLimiter(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = l.Wait(ctx)
				l.Allow()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Reset()
			}
		}()
	}
	wg.Wait()

	l.Reset()
	assert.True(t, l.Allow())
}

func TestDelayLimiterZeroNeverBlocks(t *testing.T) {
	l := NewDelayLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow())
	}
	assert.NoError(t, l.Wait(context.Background()))
}

func TestDelayLimiterWaitHonoursContext(t *testing.T) {
	l := NewDelayLimiter(time.Hour)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestDelayLimiterSpacesDispatches(t *testing.T) {
	l := NewDelayLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func newThrottle() *AutoThrottle {
	return NewAutoThrottle(AutoThrottleConfig{
		MinDelay:          100 * time.Millisecond,
		StartDelay:        300 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		TargetConcurrency: 2,
		ErrorCodes:        []int{429, 503, 504},
	})
}

func TestAutoThrottleMovesTowardsTarget(t *testing.T) {
	at := newThrottle()
	assert.Equal(t, 300*time.Millisecond, at.Delay())

	// latency 2s / concurrency 2 = 1s target; halfway from 300ms is 650ms, below target
	at.Observe(2*time.Second, 200)
	assert.Equal(t, time.Second, at.Delay())

	// fast responses pull the delay down, never below the floor
	for i := 0; i < 20; i++ {
		at.Observe(10*time.Millisecond, 200)
	}
	assert.Equal(t, 100*time.Millisecond, at.Delay())
}

func TestAutoThrottleCapsAtMax(t *testing.T) {
	at := newThrottle()
	at.Observe(time.Minute, 200)
	assert.Equal(t, 2*time.Second, at.Delay())
}

func TestAutoThrottleErrorsNeverLowerDelay(t *testing.T) {
	at := newThrottle()
	at.Observe(10*time.Millisecond, 429)
	assert.Equal(t, 300*time.Millisecond, at.Delay())

	at.Observe(4*time.Second, 503)
	assert.Equal(t, 2*time.Second, at.Delay())
}

func TestAutoThrottleReset(t *testing.T) {
	at := newThrottle()
	at.Observe(time.Minute, 200)
	at.Reset()
	assert.Equal(t, 300*time.Millisecond, at.Delay())
	assert.True(t, at.Allow())
}

func TestAutoThrottleImplementsObserver(t *testing.T) {
	var l Limiter = newThrottle()
	_, ok := l.(Observer)
	assert.True(t, ok)

	var d Limiter = NewDelayLimiter(0)
	_, ok = d.(Observer)
	assert.False(t, ok)
}
