// Package processing runs queued tasks on a fixed pool of goroutines. The
// pool size bounds how many external calls run at once no matter how many
// downloads are in flight.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dharsanguruparan/efolder-express/internal/metrics"
	"github.com/dharsanguruparan/efolder-express/internal/queue"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("processing: pool closed")

type workerKey struct{}

// Pool consumes tasks from a bounded buffer with a fixed number of workers.
//
// Callers outside the pool get backpressure: Enqueue blocks while the buffer
// is full. Tasks enqueued by a running task never block; when the buffer is
// full they are parked in an overflow list that workers take from before
// the buffer. Otherwise a worker fanning out follow-up tasks could wait on a
// buffer that only workers drain.
type Pool struct {
	logger  *slog.Logger
	queue   chan queue.Task
	done    chan struct{}
	workers int

	mu      sync.Mutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	overflowMu sync.Mutex
	overflow   []queue.Task
}

// New builds a Pool. capacity is the number of tasks that may wait for a
// worker before Enqueue starts blocking.
func New(workers, capacity int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{
		logger:  logger,
		queue:   make(chan queue.Task, capacity),
		done:    make(chan struct{}),
		workers: workers,
	}
}

// Workers returns the configured concurrency.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the worker goroutines. They run until Close is called or
// ctx is cancelled. Start may be called once.
func (p *Pool) Start(ctx context.Context, h queue.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx = context.WithValue(ctx, workerKey{}, p)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, h)
	}
}

// Enqueue hands a task to the pool. When the buffer is full it blocks until a
// worker frees a slot, ctx ends, or the pool is closed. A task accepted while
// Close runs may be dropped; its work is still pending in the store.
func (p *Pool) Enqueue(ctx context.Context, task queue.Task) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if owner, _ := ctx.Value(workerKey{}).(*Pool); owner == p {
		select {
		case p.queue <- task:
		default:
			p.overflowMu.Lock()
			p.overflow = append(p.overflow, task)
			p.overflowMu.Unlock()
		}
		p.reportDepth()
		return nil
	}
	select {
	case p.queue <- task:
		p.reportDepth()
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", task.Type, ctx.Err())
	}
}

// Close stops accepting work, lets workers drain what is buffered, and waits
// for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, h queue.Handler) {
	defer p.wg.Done()
	for {
		if task, ok := p.popOverflow(); ok {
			if ctx.Err() != nil {
				return
			}
			p.run(ctx, id, h, task)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			p.drain(ctx, id, h)
			return
		case task := <-p.queue:
			p.reportDepth()
			p.run(ctx, id, h, task)
		}
	}
}

// popOverflow takes the oldest parked task, if any.
func (p *Pool) popOverflow() (queue.Task, bool) {
	p.overflowMu.Lock()
	defer p.overflowMu.Unlock()
	if len(p.overflow) == 0 {
		return queue.Task{}, false
	}
	task := p.overflow[0]
	p.overflow[0] = queue.Task{}
	p.overflow = p.overflow[1:]
	return task, true
}

// drain runs whatever is parked or buffered once the pool is closed.
func (p *Pool) drain(ctx context.Context, id int, h queue.Handler) {
	for ctx.Err() == nil {
		task, ok := p.popOverflow()
		if !ok {
			select {
			case task = <-p.queue:
			default:
				return
			}
		}
		p.run(ctx, id, h, task)
	}
}

func (p *Pool) reportDepth() {
	p.overflowMu.Lock()
	n := len(p.overflow)
	p.overflowMu.Unlock()
	metrics.QueueDepth.Set(float64(len(p.queue) + n))
}

// run executes one task. Errors and panics stay inside the task boundary.
func (p *Pool) run(ctx context.Context, id int, h queue.Handler, task queue.Task) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			p.logger.Error("task panicked",
				slog.String("task", task.Type),
				slog.Int("worker", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		metrics.TasksProcessed.WithLabelValues(task.Type, outcome).Inc()
		metrics.TaskDuration.WithLabelValues(task.Type).Observe(time.Since(start).Seconds())
	}()

	if err := h.ProcessTask(ctx, task); err != nil {
		outcome = "error"
		p.logger.Error("task failed",
			slog.String("task", task.Type),
			slog.Int("worker", id),
			slog.String("error", err.Error()),
		)
	}
}
