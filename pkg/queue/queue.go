package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	defaultAttempts      = 3
	defaultRetryInitial  = 500 * time.Millisecond
	defaultRetryMax      = 30 * time.Second
	promoterIdleInterval = time.Second
)

// Handler processes one job attempt. A returned error feeds the retry
// machinery; wrap with backoff.Permanent to fail the job immediately.
type Handler func(ctx context.Context, job *Job) error

// FailureHandler is invoked once a job has exhausted its attempts or failed
// permanently.
type FailureHandler func(ctx context.Context, job *Job, err error)

// Options control enqueue behavior.
type Options struct {
	Delay    time.Duration
	Priority int
	Attempts int
}

// Config describes one named queue.
type Config struct {
	Name                 string
	Concurrency          int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Queue is a named job queue with a bounded worker pool. Jobs may be
// enqueued before Start; they are processed once workers run.
type Queue struct {
	name        string
	concurrency int
	retryBase   time.Duration
	retryMax    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	handler  Handler
	onFailed FailureHandler

	mu        sync.Mutex
	cond      *sync.Cond
	waiting   jobHeap
	delayed   delayHeap
	seq       uint64
	paused    bool
	stopped   bool
	started   bool
	active    int
	completed int
	failed    int

	poke   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Counts is a point-in-time snapshot of job lifecycle states.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

func New(cfg Config, logger *slog.Logger) *Queue {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = defaultRetryInitial
	}

	if cfg.RetryMaxInterval == 0 {
		cfg.RetryMaxInterval = defaultRetryMax
	}

	q := &Queue{
		name:        cfg.Name,
		concurrency: cfg.Concurrency,
		retryBase:   cfg.RetryInitialInterval,
		retryMax:    cfg.RetryMaxInterval,
		logger:      logger.With("module", "queue", "queue", cfg.Name),
		now:         time.Now,
		poke:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// SetHandler attaches the processing function. Must be called before Start.
func (q *Queue) SetHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handler = handler
}

// OnFailure attaches the permanent-failure callback. Must be called before Start.
func (q *Queue) OnFailure(fn FailureHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.onFailed = fn
}

// Add enqueues a job. Zero Options fields fall back to defaults
// (no delay, priority 0, 3 attempts).
func (q *Queue) Add(_ context.Context, payload any, opts Options) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return nil, fmt.Errorf("queue %s is stopped", q.name)
	}

	if opts.Attempts < 1 {
		opts.Attempts = defaultAttempts
	}

	now := q.now()
	q.seq++

	job := &Job{
		ID:          uuid.New().String(),
		Queue:       q.name,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: opts.Attempts,
		EnqueuedAt:  now,
		seq:         q.seq,
	}

	if opts.Delay > 0 {
		job.Status = StatusDelayed
		job.DelayUntil = now.Add(opts.Delay)
		heap.Push(&q.delayed, job)
		q.pokePromoter()
	} else {
		job.Status = StatusWaiting
		heap.Push(&q.waiting, job)
		q.cond.Signal()
	}

	return job, nil
}

// Start launches the worker pool and the delayed-job promoter.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()

	if q.handler == nil {
		q.mu.Unlock()

		return fmt.Errorf("queue %s has no handler", q.name)
	}

	if q.started {
		q.mu.Unlock()

		return nil
	}

	q.started = true
	q.mu.Unlock()

	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)

		go q.worker(ctx)
	}

	q.wg.Add(1)

	go q.promoter()

	q.logger.InfoContext(ctx, "Queue started", "concurrency", q.concurrency)

	return nil
}

// Stop drains workers. In-flight jobs finish; waiting jobs stay queued but
// unprocessed.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()

	if q.stopped {
		q.mu.Unlock()

		return nil
	}

	q.stopped = true
	close(q.stopCh)
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})

	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops workers from picking up waiting jobs. Delayed jobs keep
// promoting to waiting so their due times are preserved.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = true
}

// Resume reverses Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = false
	q.cond.Broadcast()
}

// Paused reports whether the queue is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.paused
}

// Counts returns a snapshot of job lifecycle counters.
func (q *Queue) Counts() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Counts{
		Waiting:   q.waiting.Len(),
		Active:    q.active,
		Completed: q.completed,
		Failed:    q.failed,
		Delayed:   q.delayed.Len(),
	}
}

func (q *Queue) pokePromoter() {
	select {
	case q.poke <- struct{}{}:
	default:
	}
}

// promoter moves due delayed jobs into the waiting heap.
func (q *Queue) promoter() {
	defer q.wg.Done()

	timer := time.NewTimer(promoterIdleInterval)
	defer timer.Stop()

	for {
		wait := q.promoteDue()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}

		timer.Reset(wait)

		select {
		case <-q.stopCh:
			return
		case <-q.poke:
		case <-timer.C:
		}
	}
}

// promoteDue promotes every due delayed job and returns how long to sleep
// until the next one.
func (q *Queue) promoteDue() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	promoted := false

	for q.delayed.Len() > 0 {
		next := q.delayed[0]
		if next.DelayUntil.After(now) {
			if promoted {
				q.cond.Broadcast()
			}

			return next.DelayUntil.Sub(now)
		}

		heap.Pop(&q.delayed)
		next.Status = StatusWaiting
		heap.Push(&q.waiting, next)
		promoted = true
	}

	if promoted {
		q.cond.Broadcast()
	}

	return promoterIdleInterval
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		job := q.next()
		if job == nil {
			return
		}

		q.run(ctx, job)
	}
}

// next blocks until a runnable job is available, or returns nil on stop.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopped {
			return nil
		}

		if !q.paused && q.waiting.Len() > 0 {
			job := heap.Pop(&q.waiting).(*Job)
			job.Status = StatusActive
			q.active++

			return job
		}

		q.cond.Wait()
	}
}

func (q *Queue) run(ctx context.Context, job *Job) {
	job.Attempts++

	err := q.safeHandle(ctx, job)

	q.mu.Lock()
	q.active--

	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.SetProgress(100)
		q.completed++
		q.mu.Unlock()

	case !isPermanent(err) && job.Attempts < job.MaxAttempts:
		delay := q.retryDelay(job.Attempts)
		job.Status = StatusDelayed
		job.DelayUntil = q.now().Add(delay)
		job.LastError = err.Error()
		heap.Push(&q.delayed, job)
		q.pokePromoter()
		q.mu.Unlock()

		q.logger.WarnContext(ctx, "Job attempt failed, retrying",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"retry_in", delay,
			"error", err,
		)

	default:
		job.Status = StatusFailed
		job.LastError = err.Error()
		q.failed++
		onFailed := q.onFailed
		q.mu.Unlock()

		q.logger.ErrorContext(ctx, "Job failed permanently",
			"job_id", job.ID,
			"attempts", job.Attempts,
			"error", err,
		)

		if onFailed != nil {
			onFailed(ctx, job, err)
		}
	}
}

// safeHandle converts handler panics into errors so an unexpected failure
// lands in the retry machinery instead of killing the worker.
func (q *Queue) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return q.handler(ctx, job)
}

// retryDelay computes the exponential backoff for the given attempt number.
func (q *Queue) retryDelay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.retryBase
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = q.retryMax
	bo.MaxElapsedTime = 0

	delay := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = bo.NextBackOff()
	}

	return delay
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError

	return errors.As(err, &permanent)
}
