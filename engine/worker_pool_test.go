package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool("test", 4, 0)
	defer pool.Shutdown()

	require.NotNil(t, pool)
	stats := pool.GetStats()
	assert.Equal(t, 4, stats.Workers)
	assert.Equal(t, "test", stats.Name)
	assert.True(t, pool.IsRunning())
}

func TestWorkerPoolSubmit(t *testing.T) {
	pool := NewWorkerPool("test", 2, 0)
	defer pool.Shutdown()

	var processed int64
	task := NewTask(context.Background(), "task-1", func(context.Context) (interface{}, error) {
		atomic.AddInt64(&processed, 1)
		return "data", nil
	})
	require.NoError(t, pool.Submit(task))

	select {
	case result := <-task.Done():
		assert.True(t, result.Success)
		assert.Equal(t, "task-1", result.TaskID)
		assert.Equal(t, "data", result.Data)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for result")
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&processed))
}

func TestWorkerPoolSubmitWithError(t *testing.T) {
	pool := NewWorkerPool("test", 2, 0)
	defer pool.Shutdown()

	expectedErr := errors.New("task failed")
	task := NewTask(context.Background(), "task-error", func(context.Context) (interface{}, error) {
		return nil, expectedErr
	})

	result, err := pool.SubmitAndWait(task, time.Second)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, expectedErr, result.Error)
	assert.Equal(t, int64(1), pool.GetStats().Failed)
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	pool := NewWorkerPool("test", 1, 0)
	defer pool.Shutdown()

	task := NewTask(context.Background(), "boom", func(context.Context) (interface{}, error) {
		panic("boom")
	})
	result, err := pool.SubmitAndWait(task, time.Second)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Error(), "boom")

	// the worker survives
	ok := NewTask(context.Background(), "ok", func(context.Context) (interface{}, error) { return 1, nil })
	result, err = pool.SubmitAndWait(ok, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestWorkerPoolCancelledTask(t *testing.T) {
	pool := NewWorkerPool("test", 1, 0)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	task := NewTask(ctx, "cancelled", func(context.Context) (interface{}, error) {
		ran = true
		return nil, nil
	})
	result, err := pool.SubmitAndWait(task, time.Second)
	require.NoError(t, err)
	assert.True(t, errors.Is(result.Error, context.Canceled))
	assert.False(t, ran)

	result, err = pool.SubmitAndWait(NewTask(context.Background(), "nil", nil), time.Second)
	require.NoError(t, err)
	assert.Equal(t, ErrNoProcessFunc, result.Error)
}

func TestWorkerPoolConcurrency(t *testing.T) {
	pool := NewWorkerPool("test", 8, 0)
	defer pool.Shutdown()

	numTasks := 100
	tasks := make([]*Task, numTasks)
	for i := 0; i < numTasks; i++ {
		i := i
		tasks[i] = NewTask(context.Background(), fmt.Sprintf("task-%d", i), func(context.Context) (interface{}, error) {
			time.Sleep(time.Millisecond)
			return i, nil
		})
		require.NoError(t, pool.SubmitContext(context.Background(), tasks[i]))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i, task := range tasks {
		result, err := task.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, result.Data)
	}
	assert.Equal(t, int64(numTasks), pool.GetStats().Completed)
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool := NewWorkerPool("test", 1, 1)
	defer pool.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := NewTask(context.Background(), "blocker", func(context.Context) (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, pool.Submit(blocker))
	<-started

	queued := NewTask(context.Background(), "queued", func(context.Context) (interface{}, error) { return nil, nil })
	require.NoError(t, pool.Submit(queued))

	extra := NewTask(context.Background(), "extra", func(context.Context) (interface{}, error) { return nil, nil })
	assert.Equal(t, ErrQueueFull, pool.Submit(extra))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(pool.SubmitContext(ctx, extra), context.DeadlineExceeded))

	close(release)
}

func TestWorkerPoolShutdown(t *testing.T) {
	pool := NewWorkerPool("test", 4, 0)

	task := NewTask(context.Background(), "task-1", func(context.Context) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, pool.Submit(task))

	pool.Shutdown()
	assert.False(t, pool.IsRunning())

	// queued work completes before Shutdown returns
	select {
	case result := <-task.Done():
		assert.True(t, result.Success)
	default:
		t.Fatal("queued task did not complete")
	}

	err := pool.Submit(NewTask(context.Background(), "late", nil))
	assert.Equal(t, ErrPoolShutdown, err)

	// second shutdown is a no-op
	pool.Shutdown()
	assert.NoError(t, pool.ShutdownWithTimeout(time.Second))
}

func TestWorkerPoolShutdownWithTimeout(t *testing.T) {
	pool := NewWorkerPool("slow", 1, 0)

	release := make(chan struct{})
	defer close(release)
	task := NewTask(context.Background(), "slow", func(context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, pool.Submit(task))

	err := pool.ShutdownWithTimeout(10 * time.Millisecond)
	assert.True(t, errors.Is(err, ErrShutdownTimeout))
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool("stats-test", 2, 0)
	defer pool.Shutdown()

	var tasks []*Task
	for i := 0; i < 5; i++ {
		tasks = append(tasks, NewTask(context.Background(), fmt.Sprintf("ok-%d", i), func(context.Context) (interface{}, error) {
			return nil, nil
		}))
	}
	for i := 0; i < 3; i++ {
		tasks = append(tasks, NewTask(context.Background(), fmt.Sprintf("fail-%d", i), func(context.Context) (interface{}, error) {
			return nil, errors.New("fail")
		}))
	}
	for _, task := range tasks {
		require.NoError(t, pool.Submit(task))
	}
	for _, task := range tasks {
		_, err := task.Wait(context.Background())
		require.NoError(t, err)
	}

	stats := pool.GetStats()
	assert.Equal(t, int64(5), stats.Completed)
	assert.Equal(t, int64(3), stats.Failed)
	assert.InDelta(t, 62.5, stats.SuccessRate, 0.001)
}

func BenchmarkWorkerPoolThroughput(b *testing.B) {
	pool := NewWorkerPool("throughput", 16, 0)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		wg.Add(1)
		task := NewTask(context.Background(), fmt.Sprintf("task-%d", i), func(context.Context) (interface{}, error) {
			return nil, nil
		})
		_ = pool.SubmitContext(context.Background(), task)
		go func() {
			defer wg.Done()
			<-task.Done()
		}()
	}

	wg.Wait()
}
