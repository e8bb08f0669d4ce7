package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_RunsImmediatelyThenRepeats(t *testing.T) {
	var n atomic.Int32
	task := New("running", 10*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})

	task.Start(context.Background())
	defer task.Stop()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, task.Running())
}

func TestTask_FirstRunDoesNotWaitForInterval(t *testing.T) {
	ran := make(chan struct{}, 1)
	task := New("totals", time.Hour, func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	task.Start(context.Background())
	defer task.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}
}

func TestTask_StopWaitsForIteration(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	task := New("slow", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})

	task.Start(context.Background())
	<-started
	task.Stop()

	assert.True(t, finished.Load(), "Stop returned before the iteration ended")
	assert.False(t, task.Running())
	task.Stop() // second stop is a no-op
}

func TestTask_StartTwiceIsNoop(t *testing.T) {
	var n atomic.Int32
	task := New("x", time.Hour, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})
	task.Start(context.Background())
	task.Start(context.Background())
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	task.Stop()

	// Give a second loop a chance to show up if one had been started.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestTask_ErrorsDoNotStopLoop(t *testing.T) {
	var n atomic.Int32
	task := New("failing", 5*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return errors.New("upstream down")
	})
	task.Start(context.Background())
	defer task.Stop()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestTask_ParentContextEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := New("ctx", 5*time.Millisecond, func(ctx context.Context) error { return nil })
	task.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return !task.Running() }, time.Second, 5*time.Millisecond)
	task.Stop()
}

func TestTask_Restart(t *testing.T) {
	var n atomic.Int32
	task := New("restart", time.Hour, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})
	task.Start(context.Background())
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	task.Stop()

	task.Start(context.Background())
	defer task.Stop()
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestNew_DefaultInterval(t *testing.T) {
	task := New("d", 0, func(context.Context) error { return nil })
	assert.Equal(t, time.Second, task.Interval())
	assert.Equal(t, "d", task.Name())
	assert.False(t, task.Running())
}
