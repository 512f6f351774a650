// Package queue owns the bounded FIFO of pending jobs and the processing
// set. Every accepted job gets a future that is settled exactly once:
// completed, failed, timed out, or shutting down.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
)

// Queue is the bounded job queue. Enqueue fails fast when full; Take hands
// jobs to the worker pool dispatcher in FIFO order.
type Queue struct {
	logger     *zap.Logger
	jobTimeout time.Duration
	maxPending int

	jobs chan *Job

	mu         sync.Mutex
	processing map[string]*Job
	timers     map[string]*time.Timer
	closed     bool
}

// Job pairs the immutable job inputs with its settlement future.
type Job struct {
	*models.Job
	future *Future
}

// Future resolves to the job outcome. Done is closed on settlement.
type Future struct {
	once      sync.Once
	done      chan struct{}
	artifacts []models.Artifact
	err       error
}

// Done returns the channel closed when the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the settled outcome; valid only after Done is closed.
func (f *Future) Result() ([]models.Artifact, error) { return f.artifacts, f.err }

// Settled reports whether the future has already resolved.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future) settle(artifacts []models.Artifact, err error) bool {
	settled := false
	f.once.Do(func() {
		f.artifacts = artifacts
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

func New(maxPending int, jobTimeout time.Duration, logger *zap.Logger) *Queue {
	return &Queue{
		logger:     logger,
		jobTimeout: jobTimeout,
		maxPending: maxPending,
		jobs:       make(chan *Job, maxPending),
		processing: make(map[string]*Job),
		timers:     make(map[string]*time.Timer),
	}
}

// Enqueue admits job inputs into the pending queue and arms the deadline
// timer. Returns Busy immediately when the queue is full.
func (q *Queue) Enqueue(job *models.Job) (*Future, error) {
	job.ID = uuid.New().String()
	job.Status = models.StatusPending
	job.CreatedAt = time.Now()
	job.Deadline = job.CreatedAt.Add(q.jobTimeout)

	queued := &Job{Job: job, future: &Future{done: make(chan struct{})}}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, apperrors.New(apperrors.KindShuttingDown, "Server is shutting down")
	}
	select {
	case q.jobs <- queued:
	default:
		q.mu.Unlock()
		return nil, apperrors.New(apperrors.KindBusy, "Server is busy. Please try again later")
	}
	q.timers[job.ID] = time.AfterFunc(q.jobTimeout, func() { q.timeout(queued) })
	q.mu.Unlock()

	q.logger.Debug("job enqueued", zap.String("job_id", job.ID))
	return queued.future, nil
}

// Take pops the next pending job and moves it into the processing set.
// Jobs whose future already settled (deadline fired while pending) are
// skipped. Returns nil when the queue is drained and closed.
func (q *Queue) Take() *Job {
	for job := range q.jobs {
		if job.future.Settled() {
			continue
		}
		q.mu.Lock()
		job.Status = models.StatusProcessing
		job.StartedAt = time.Now()
		q.processing[job.ID] = job
		q.mu.Unlock()
		return job
	}
	return nil
}

// Complete settles the job's future with its artifacts. Late completions
// after a deadline or crash settlement are dropped.
func (q *Queue) Complete(id string, artifacts []models.Artifact) {
	job := q.remove(id)
	if job == nil {
		return
	}
	if job.future.settle(artifacts, nil) {
		job.Status = models.StatusCompleted
		job.CompletedAt = time.Now()
	}
}

// Fail settles the job's future with an error, idempotently.
func (q *Queue) Fail(id string, err error) {
	job := q.remove(id)
	if job == nil {
		return
	}
	if job.future.settle(nil, err) {
		job.Status = models.StatusFailed
		job.CompletedAt = time.Now()
	}
}

func (q *Queue) timeout(job *Job) {
	if job.future.settle(nil, apperrors.New(apperrors.KindTimeout, "Processing took too long")) {
		job.Status = models.StatusTimedOut
		q.logger.Warn("job deadline fired", zap.String("job_id", job.ID))
	}
	q.mu.Lock()
	delete(q.processing, job.ID)
	delete(q.timers, job.ID)
	q.mu.Unlock()
}

func (q *Queue) remove(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	job := q.processing[id]
	delete(q.processing, id)
	if t := q.timers[id]; t != nil {
		t.Stop()
		delete(q.timers, id)
	}
	return job
}

// Stats returns a point-in-time snapshot of queue occupancy.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.QueueStats{
		Pending:    len(q.jobs),
		Processing: len(q.processing),
		Max:        q.maxPending,
	}
}

// Shutdown stops admissions, settles every pending future, and cancels the
// deadline timers. In-flight jobs keep their futures; the pool settles them.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	close(q.jobs)
	for job := range q.jobs {
		job.future.settle(nil, apperrors.New(apperrors.KindShuttingDown, "Server is shutting down"))
	}
}
