// Package offload implements a bounded worker pool for CPU-bound jobs such as
// page rasterization and text extraction. Callers submit a job and receive a
// Future; only the goroutine awaiting the Future blocks.
package offload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// ErrPoolClosed is returned for jobs submitted after Close.
var ErrPoolClosed = errors.New("offload pool closed")

// Func is the unit of work executed by a worker.
type Func func(ctx context.Context) (any, error)

// Future is the pending result of a submitted job.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(val any, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the job finishes or ctx is done. Giving up does not stop the job.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	ctx      context.Context
	name     string
	fn       Func
	future   *Future
	enqueued time.Time
}

// Pool manages a fixed set of worker goroutines started at construction.
type Pool struct {
	workers int
	timeout time.Duration
	jobs    chan job
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueSize sets the job buffer. Submit blocks while the buffer is full.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.jobs = make(chan job, n)
		}
	}
}

// WithJobTimeout bounds every job's running time.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// WithMetrics records job counts and durations.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// NewPool starts a pool with the given number of workers.
// A non-positive count uses the number of available CPUs.
func NewPool(workers int, logger *slog.Logger, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		workers: workers,
		jobs:    make(chan job, workers*2), // small buffer for backpressure
		logger:  logger.With(slog.String("component", "offload")),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("offload pool started", slog.Int("workers", p.workers), slog.Int("queue", cap(p.jobs)))
	return p
}

// Submit enqueues fn and returns its Future. If the pool is closed or ctx ends before
// the job is admitted, the Future resolves immediately with that error.
func (p *Pool) Submit(ctx context.Context, name string, fn Func) *Future {
	f := newFuture()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		f.resolve(nil, ErrPoolClosed)
		return f
	}

	select {
	case p.jobs <- job{ctx: ctx, name: name, fn: fn, future: f, enqueued: time.Now()}:
		p.metrics.submitted(name)
	case <-ctx.Done():
		f.resolve(nil, ctx.Err())
	}
	return f
}

// Run submits fn and awaits its typed result.
func Run[T any](ctx context.Context, p *Pool, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := p.Submit(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}).Await(ctx)
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// Close stops admission, lets workers drain queued jobs and waits for them.
// Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("offload pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.process(id, j)
	}
}

func (p *Pool) process(workerID int, j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		p.metrics.finished(j.name, statusCancelled, 0)
		j.future.resolve(nil, fmt.Errorf("job cancelled before processing: %w", err))
		return
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	p.metrics.started()
	val, err := p.call(ctx, j)
	latency := time.Since(start)

	if err != nil {
		p.logger.Warn("job failed",
			slog.Int("worker_id", workerID),
			slog.String("job", j.name),
			slog.Duration("queued", start.Sub(j.enqueued)),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		p.metrics.finished(j.name, statusError, latency)
		j.future.resolve(nil, err)
		return
	}

	p.logger.Debug("job completed",
		slog.Int("worker_id", workerID),
		slog.String("job", j.name),
		slog.Duration("queued", start.Sub(j.enqueued)),
		slog.Duration("latency", latency),
	)
	p.metrics.finished(j.name, statusOK, latency)
	j.future.resolve(val, nil)
}

func (p *Pool) call(ctx context.Context, j job) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}
