package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-tempsim/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr := NewManager(context.Background(), logger.GetLogger())
	t.Cleanup(func() {
		mgr.Stop()
		mgr.Wait()
	})

	return mgr
}

func TestManager_Go(t *testing.T) {
	mgr := newTestManager(t)

	done := make(chan struct{})
	require.NoError(t, mgr.Go("once", func(ctx context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	assert.Eventually(t, func() bool { return mgr.TaskCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_StartLoopUntilFalse(t *testing.T) {
	mgr := newTestManager(t)

	var n atomic.Int32
	require.NoError(t, mgr.Start("loop", func(ctx context.Context) bool {
		return n.Add(1) < 5
	}))

	assert.Eventually(t, func() bool { return mgr.TaskCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), n.Load())
}

func TestManager_StopCancelsLoop(t *testing.T) {
	mgr := NewManager(context.Background(), nil)

	started := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, mgr.Start("blocking", func(ctx context.Context) bool {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return true
	}))

	<-started
	assert.Equal(t, 1, mgr.TaskCount())

	mgr.Stop()
	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())

	// re-armed after Wait
	require.NoError(t, mgr.Go("again", func(context.Context) {}))
	mgr.Stop()
	mgr.Wait()
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := NewManager(context.Background(), nil)
	mgr.Stop()

	err := mgr.Go("late", func(context.Context) {})
	require.ErrorIs(t, err, ErrStopped)
	mgr.Wait()
}

func TestManager_StartInterval(t *testing.T) {
	mgr := newTestManager(t)

	var n atomic.Int32
	require.NoError(t, mgr.StartInterval("tick", func(ctx context.Context) bool {
		return n.Add(1) < 3
	}, 5*time.Millisecond, true))

	assert.Eventually(t, func() bool { return n.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return mgr.TaskCount() == 0 }, time.Second, 5*time.Millisecond)

	require.Error(t, mgr.StartInterval("bad", func(context.Context) bool { return true }, 0, false))
}

func TestManager_DuplicateInterval(t *testing.T) {
	mgr := newTestManager(t)

	fn := func(context.Context) bool { return true }
	require.NoError(t, mgr.StartInterval("dup", fn, time.Hour, false))
	require.Error(t, mgr.StartInterval("dup", fn, time.Hour, false))
	assert.Equal(t, 1, mgr.TaskCount())
}

func TestManager_RecoversPanic(t *testing.T) {
	m := &logger.MockLogger{}
	m.On("Debug", mock.Anything, mock.Anything).Maybe()
	m.On("Error", "panic in task", mock.Anything).Once()

	mgr := NewManager(context.Background(), m)
	require.NoError(t, mgr.Start("panicky", func(context.Context) bool {
		panic("boom")
	}))

	assert.Eventually(t, func() bool { return mgr.TaskCount() == 0 }, time.Second, 5*time.Millisecond)
	mgr.Stop()
	mgr.Wait()
	m.AssertExpectations(t)
}
