// Package worker implements the fixed-size pool that runs update handlers
// off the ingress path.
package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/hookbot/internal/metrics"
)

// Job is one unit of handler work. The context is the pool's base context;
// it is cancelled only at process shutdown, not per job.
type Job func(ctx context.Context)

var (
	// ErrQueueFull is returned when the queue is at its configured maximum.
	// The caller keeps ownership of any resources captured by the job.
	ErrQueueFull = errors.New("worker: job queue full")
	// ErrPoolClosed is returned for submissions after Shutdown.
	ErrPoolClosed = errors.New("worker: pool closed")
)

// Pool runs jobs on a fixed number of workers. Submission is non-blocking;
// ordering is FIFO under one shared lock. Shutdown drains: workers exit only
// after the queue is observed empty with the closed flag set.
//
// The queue is a slice with a moving head; the backing array is reclaimed
// whenever the queue empties, so the minJobs preallocation keeps serving
// the steady state.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Job
	head   int
	closed bool

	workers int
	maxJobs int
	wg      sync.WaitGroup

	metrics *metrics.Metrics
}

// NewPool creates a pool with the given worker count and queue bounds.
// minJobs sizes the queue's initial allocation; maxJobs <= 0 means
// unbounded.
func NewPool(workers, minJobs, maxJobs int, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if minJobs < 0 {
		minJobs = 0
	}
	p := &Pool{
		queue:   make([]Job, 0, minJobs),
		workers: workers,
		maxJobs: maxJobs,
		metrics: m,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. ctx is passed to every job.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Submit enqueues a job. It never blocks: a full queue or a closed pool is
// reported to the caller, which must dispose anything the job owns.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.maxJobs > 0 && p.pending() >= p.maxJobs {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.JobsRejected.Inc()
		}
		return ErrQueueFull
	}
	p.queue = append(p.queue, job)
	n := p.pending()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.JobsSubmitted.Inc()
		p.metrics.JobsQueued.Set(float64(n))
	}
	p.cond.Signal()
	return nil
}

// Shutdown stops accepting jobs and waits until the queue is drained and
// every in-flight job has returned. Jobs are never cancelled.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// Len returns the number of queued jobs.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending()
}

// pending is the queue depth. Callers hold p.mu.
func (p *Pool) pending() int {
	return len(p.queue) - p.head
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.pending() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.pending() == 0 {
			// Queue empty and pool closed: drain complete.
			p.mu.Unlock()
			return
		}
		job := p.queue[p.head]
		p.queue[p.head] = nil
		p.head++
		if p.head == len(p.queue) {
			p.queue = p.queue[:0]
			p.head = 0
		}
		n := p.pending()
		p.mu.Unlock()

		if p.metrics != nil {
			p.metrics.JobsQueued.Set(float64(n))
		}
		p.invoke(ctx, id, job)
	}
}

// invoke runs one job, containing panics so a failing handler never takes
// down the worker or sibling updates.
func (p *Pool) invoke(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: job panicked", "worker", id, "panic", r, "stack", string(debug.Stack()))
		}
		if p.metrics != nil {
			p.metrics.JobsExecuted.Inc()
		}
	}()
	job(ctx)
}
