package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var logger = log.New()

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

var (
	ErrPoolShutdown    = errors.New("worker pool is shut down")
	ErrQueueFull       = errors.New("task queue is full")
	ErrShutdownTimeout = errors.New("shutdown timeout")
	ErrNoProcessFunc   = errors.New("no process function defined")
)

// ProcessFunc is the work of one task.
type ProcessFunc func(ctx context.Context) (interface{}, error)

// Task is a unit of work for the pool. Its result is delivered exactly once,
// so a task must not be submitted twice.
type Task struct {
	ID        string
	Process   ProcessFunc
	CreatedAt time.Time
	Ctx       context.Context

	done chan *Result
}

// NewTask creates a task bound to ctx.
func NewTask(ctx context.Context, id string, fn ProcessFunc) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{
		ID:        id,
		Process:   fn,
		CreatedAt: time.Now(),
		Ctx:       ctx,
		done:      make(chan *Result, 1),
	}
}

// Wait blocks until the task has a result or ctx is done.
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	select {
	case r := <-t.done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns the channel the result is delivered on.
func (t *Task) Done() <-chan *Result { return t.done }

// Result is the outcome of a task.
type Result struct {
	TaskID   string
	Success  bool
	Data     interface{}
	Error    error
	Duration time.Duration
	WorkerID int
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// WorkerPool runs tasks on a fixed number of goroutines.
type WorkerPool struct {
	name     string
	workers  int
	taskChan chan *Task
	wg       sync.WaitGroup

	active    int64
	completed int64
	failed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewWorkerPool starts workers goroutines sharing a queue of queueSize tasks.
// Non-positive values select one worker and a queue of 100 per worker.
func NewWorkerPool(name string, workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		name:     name,
		workers:  workers,
		taskChan: make(chan *Task, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		running:  true,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.WithFields(log.Fields{"pool": name, "workers": workers, "queue": queueSize}).Debug("worker pool started")
	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.taskChan {
		p.processTask(id, task)
	}
}

func (p *WorkerPool) processTask(workerID int, task *Task) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	start := time.Now()
	result := &Result{TaskID: task.ID, WorkerID: workerID}

	finish := func(data interface{}, err error) {
		result.Data = data
		result.Error = err
		result.Success = err == nil
		result.Duration = time.Since(start)
		if result.Success {
			atomic.AddInt64(&p.completed, 1)
		} else {
			atomic.AddInt64(&p.failed, 1)
		}
		task.done <- result
	}

	// one task must not take the pool down
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(log.Fields{"pool": p.name, "task": task.ID}).Errorf("panic in task: %v", r)
			finish(nil, errors.Errorf("panic in task processing: %v", r))
		}
	}()

	if p.ctx.Err() != nil {
		finish(nil, ErrPoolShutdown)
		return
	}
	if err := task.Ctx.Err(); err != nil {
		finish(nil, err)
		return
	}
	if task.Process == nil {
		finish(nil, ErrNoProcessFunc)
		return
	}

	data, err := task.Process(task.Ctx)
	finish(data, err)
}

// Submit queues task without blocking.
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolShutdown
	}

	select {
	case p.taskChan <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitContext queues task, waiting for queue space until ctx is done.
func (p *WorkerPool) SubmitContext(ctx context.Context, task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolShutdown
	}

	select {
	case p.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAndWait queues task and waits up to timeout for its result.
func (p *WorkerPool) SubmitAndWait(task *Task, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := p.SubmitContext(ctx, task); err != nil {
		return nil, err
	}
	return task.Wait(ctx)
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	completed := atomic.LoadInt64(&p.completed)
	failed := atomic.LoadInt64(&p.failed)
	total := completed + failed

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return PoolStats{
		Name:        p.name,
		Workers:     p.workers,
		Active:      atomic.LoadInt64(&p.active),
		Completed:   completed,
		Failed:      failed,
		Pending:     len(p.taskChan),
		SuccessRate: successRate,
	}
}

func (p *WorkerPool) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	p.running = false
	close(p.taskChan)
	return true
}

// Shutdown stops accepting tasks and waits for queued tasks to finish.
func (p *WorkerPool) Shutdown() {
	if !p.stop() {
		return
	}
	p.wg.Wait()
	p.cancel()
	logger.WithField("pool", p.name).Debug("worker pool stopped")
}

// ShutdownWithTimeout is like Shutdown but gives queued tasks at most timeout
// to finish. Tasks still queued after that fail with ErrPoolShutdown.
func (p *WorkerPool) ShutdownWithTimeout(timeout time.Duration) error {
	if !p.stop() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return errors.Wrapf(ErrShutdownTimeout, "pool %s", p.name)
	}
}

// IsRunning returns true if the pool is still accepting tasks.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
