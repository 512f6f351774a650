// Package workerpool fans jobs out to isolated workers. Each worker is
// pinned to one job at a time; a panicking worker fails its in-flight job,
// exits, and is replaced after a backoff so repeated crashes cannot spin.
package workerpool

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/queue"
)

// Converter executes one conversion job. Implementations must be safe for
// concurrent use by multiple workers.
type Converter interface {
	Convert(job *models.Job) ([]models.Artifact, error)
}

// event is the worker-to-dispatcher message type.
type event interface{ isEvent() }

// readyEvent announces a worker is idle and can accept a job.
type readyEvent struct{ worker *worker }

// resultEvent carries a finished job outcome.
type resultEvent struct {
	workerID  int
	jobID     string
	artifacts []models.Artifact
	err       error
}

// crashEvent reports a worker that died mid-job.
type crashEvent struct {
	workerID int
	jobID    string
	reason   string
}

func (readyEvent) isEvent()  {}
func (resultEvent) isEvent() {}
func (crashEvent) isEvent()  {}

const (
	baseSpawnBackoff = 100 * time.Millisecond
	maxSpawnBackoff  = 5 * time.Second
	shutdownGrace    = 5 * time.Second
)

// Pool runs P workers consuming jobs from the queue.
type Pool struct {
	logger    *zap.Logger
	queue     *queue.Queue
	converter Converter
	size      int

	// SpawnBackoff is the base delay before replacing a crashed worker;
	// it doubles per consecutive crash up to maxSpawnBackoff.
	SpawnBackoff time.Duration

	events chan event
	idle   chan *worker
	quit   chan struct{}
	done   chan struct{}

	mu           sync.Mutex
	workers      map[int]*worker
	nextWorkerID int
	draining     bool
	crashStreak  int

	wg sync.WaitGroup
}

type worker struct {
	id      int
	jobs    chan *queue.Job
	pool    *Pool
	current *queue.Job
}

func New(q *queue.Queue, converter Converter, size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		logger:       logger,
		queue:        q,
		converter:    converter,
		size:         size,
		SpawnBackoff: baseSpawnBackoff,
		events:       make(chan event, size*4),
		idle:         make(chan *worker, size*2),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		workers:      make(map[int]*worker),
	}
}

// Start spawns the workers and the dispatcher loops.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.spawn()
	}
	go p.eventLoop()
	go p.dispatchLoop()
}

// Size reports the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *Pool) spawn() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	id := p.nextWorkerID
	p.nextWorkerID++
	w := &worker{id: id, jobs: make(chan *queue.Job, 1), pool: p}
	p.workers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go w.run()
}

// dispatchLoop pulls jobs in FIFO order and hands each to any idle worker.
// It exits when the queue shuts down, then tells every worker to finish.
func (p *Pool) dispatchLoop() {
	for {
		job := p.queue.Take()
		if job == nil {
			break
		}
		select {
		case w := <-p.idle:
			w.jobs <- job
		case <-p.quit:
			p.queue.Fail(job.ID, apperrors.New(apperrors.KindShuttingDown, "Server is shutting down"))
			return
		}
	}

	p.mu.Lock()
	p.draining = true
	for _, w := range p.workers {
		close(w.jobs)
	}
	p.mu.Unlock()
	close(p.done)
}

// eventLoop applies worker messages to the queue and replaces crashed
// workers.
func (p *Pool) eventLoop() {
	for {
		select {
		case ev := <-p.events:
			p.handleEvent(ev)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) handleEvent(ev event) {
	switch e := ev.(type) {
	case readyEvent:
		select {
		case p.idle <- e.worker:
		default:
		}
	case resultEvent:
		if e.err != nil {
			p.queue.Fail(e.jobID, e.err)
		} else {
			p.queue.Complete(e.jobID, e.artifacts)
		}
		p.mu.Lock()
		p.crashStreak = 0
		p.mu.Unlock()
	case crashEvent:
		p.logger.Error("worker crashed",
			zap.Int("worker_id", e.workerID),
			zap.String("job_id", e.jobID),
			zap.String("reason", e.reason))
		if e.jobID != "" {
			p.queue.Fail(e.jobID, apperrors.New(apperrors.KindWorkerCrashed, "Unexpected error; please retry"))
		}

		p.mu.Lock()
		delete(p.workers, e.workerID)
		p.crashStreak++
		backoff := p.SpawnBackoff
		for i := 1; i < p.crashStreak; i++ {
			backoff *= 2
			if backoff >= maxSpawnBackoff {
				backoff = maxSpawnBackoff
				break
			}
		}
		p.mu.Unlock()

		go func() {
			select {
			case <-time.After(backoff):
				p.spawn()
			case <-p.quit:
			}
		}()
	}
}

// Shutdown waits for the dispatcher to drain, gives in-flight jobs a grace
// period, then abandons stragglers. The queue must be shut down first so
// Take unblocks.
func (p *Pool) Shutdown() {
	select {
	case <-p.done:
	case <-time.After(shutdownGrace):
	}

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(shutdownGrace):
		p.logger.Warn("workers did not exit within grace period")
	}
	close(p.quit)
}

func (w *worker) run() {
	defer w.pool.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			jobID := ""
			if w.current != nil {
				jobID = w.current.ID
			}
			w.pool.events <- crashEvent{
				workerID: w.id,
				jobID:    jobID,
				reason:   fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	w.pool.events <- readyEvent{worker: w}
	for job := range w.jobs {
		w.current = job
		artifacts, err := w.pool.converter.Convert(job.Job)
		w.current = nil
		w.pool.events <- resultEvent{workerID: w.id, jobID: job.ID, artifacts: artifacts, err: err}
		w.pool.events <- readyEvent{worker: w}
	}

	w.pool.mu.Lock()
	delete(w.pool.workers, w.id)
	w.pool.mu.Unlock()
}
