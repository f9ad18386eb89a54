package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"TrustRegistry/internal/ports"
)

var (
	// ErrQueueFull is returned when the pool backlog cannot take another task.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrPoolClosed is returned when submitting to a stopped pool.
	ErrPoolClosed = errors.New("worker pool is stopped")
)

type job struct {
	ctx context.Context
	run func(ctx context.Context)
}

// Pool runs submitted tasks on a fixed number of goroutines fed by a buffered channel.
type Pool struct {
	size   int
	tasks  chan job
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool

	pending sync.WaitGroup
	workers sync.WaitGroup
}

var _ ports.TaskRunner = (*Pool)(nil)

// NewPool builds a pool of size workers with a backlog of queue tasks.
func NewPool(size, queue int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < size {
		queue = size
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{size: size, tasks: make(chan job, queue), logger: logger}
}

// Start launches the workers. Calling it again is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.workers.Add(1)
		go func(idx int) {
			defer p.workers.Done()
			for j := range p.tasks {
				p.execute(idx, j)
			}
		}(i)
	}
}

func (p *Pool) execute(idx int, j job) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker", idx, "panic", r)
		}
	}()

	if j.ctx.Err() != nil {
		return
	}
	j.run(j.ctx)
}

// Submit enqueues task without blocking. The task runs with ctx and is
// skipped when ctx is done before a worker picks it up.
func (p *Pool) Submit(ctx context.Context, task func(ctx context.Context)) error {
	if task == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.pending.Add(1)
	select {
	case p.tasks <- job{ctx: ctx, run: task}:
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every submitted task, including tasks submitted by
// running tasks, has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop refuses new tasks, lets the workers drain the backlog and waits for
// them or for ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
