package narrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// TestDefaultSessionScheduler_RunOnce tests the scheduler in run-once mode
func TestDefaultSessionScheduler_RunOnce(t *testing.T) {
	var calls atomic.Int32
	scheduler := NewDefaultSessionScheduler(10*time.Millisecond, true, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))
	assert.Equal(t, int32(1), calls.Load())

	// Nothing else is scheduled
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "Expected callback to be called exactly once")

	require.NoError(t, scheduler.Stop())
	assert.True(t, scheduler.Stopped())
	require.NoError(t, scheduler.WaitForShutdown(ctx))
}

// TestDefaultSessionScheduler_Periodic tests the scheduler in continuous mode
func TestDefaultSessionScheduler_Periodic(t *testing.T) {
	callChan := make(chan struct{}, 10)
	expectedCalls := 3

	scheduler := NewDefaultSessionScheduler(10*time.Millisecond, false, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error {
		select {
		case callChan <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))
	assert.False(t, scheduler.Stopped())

	for i := 0; i < expectedCalls; i++ {
		select {
		case <-callChan:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for session %d", i+1)
		}
	}

	require.NoError(t, scheduler.Stop())
	require.NoError(t, scheduler.WaitForShutdown(ctx))
	assert.True(t, scheduler.Stopped())

	// Stopping twice is harmless
	require.NoError(t, scheduler.Stop())
}

func TestDefaultSessionScheduler_FirstSessionError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	scheduler := NewDefaultSessionScheduler(time.Millisecond, false, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error {
		calls.Add(1)
		return boom
	})

	err := scheduler.Start(context.Background())
	require.ErrorIs(t, err, boom)

	// The periodic loop never starts
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	require.NoError(t, scheduler.WaitForShutdown(context.Background()))
}

func TestDefaultSessionScheduler_ContextCancellation(t *testing.T) {
	scheduler := NewDefaultSessionScheduler(time.Hour, false, testLogger())
	scheduler.RegisterCallback(func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, scheduler.WaitForShutdown(waitCtx))
	assert.True(t, scheduler.Stopped())
}

func TestDefaultSessionScheduler_NoCallback(t *testing.T) {
	scheduler := NewDefaultSessionScheduler(time.Second, true, testLogger())
	err := scheduler.Start(context.Background())
	assert.ErrorContains(t, err, "callback must be registered")
}
