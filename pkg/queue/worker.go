package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

// Reporter lets a handler publish coarse progress (0-100).
type Reporter interface {
	Progress(ctx context.Context, percent int) error
}

// Handler processes one job attempt.
type Handler interface {
	Handle(ctx context.Context, job *Job, reporter Reporter) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job, reporter Reporter) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job, reporter Reporter) error {
	return f(ctx, job, reporter)
}

// FailureHandler is implemented by handlers that want to react once a job has
// exhausted its attempts.
type FailureHandler interface {
	OnFailed(ctx context.Context, job *Job, err error)
}

// WorkerOptions bounds parallelism and polling. Lease is how long a claimed
// job may go without a heartbeat before another worker takes it over.
type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
	Lease        time.Duration
}

const defaultLease = 30 * time.Second

// errStalled is the failure recorded for a job whose last attempt never
// reported back.
var errStalled = errors.New("job stalled: worker stopped before finishing")

// Worker pulls jobs from a queue and runs them with bounded concurrency.
type Worker struct {
	queue   *Queue
	handler Handler
	opts    WorkerOptions
	logg    *logger.Logger
}

func NewWorker(q *Queue, handler Handler, opts WorkerOptions, logg *logger.Logger) (*Worker, error) {
	if q == nil {
		return nil, errors.New("queue is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	return &Worker{queue: q, handler: handler, opts: opts, logg: logg}, nil
}

// Run blocks until ctx is cancelled. In-flight jobs finish before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	ctx = w.logg.WithField(ctx, "queue", w.queue.name)
	w.logg.Info(ctx, "queue worker started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.claimLoop(ctx)
		}()
	}

	wg.Wait()
	w.logg.Info(context.WithoutCancel(ctx), "queue worker stopped")
	return ctx.Err()
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.queue.backend.PromoteDue(ctx, w.queue.name, w.queue.now()); err != nil && ctx.Err() == nil {
			w.logg.Error(ctx, "promote delayed jobs failed", err)
		}
		w.requeueStalled(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) requeueStalled(ctx context.Context) {
	q := w.queue
	ids, err := q.backend.RequeueStalled(ctx, q.name, q.now(), w.opts.Lease)
	if err != nil {
		if ctx.Err() == nil {
			w.logg.Error(ctx, "requeue stalled jobs failed", err)
		}
		return
	}
	for _, id := range ids {
		q.metrics.Processed(q.name, metrics.OutcomeStalled, 0)
		w.logg.Warn(w.logg.WithJob(ctx, q.name, id), "stalled job requeued")
	}
}

func (w *Worker) claimLoop(ctx context.Context) {
	for ctx.Err() == nil {
		id, err := w.queue.backend.Claim(ctx, w.queue.name, w.opts.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logg.Error(ctx, "claim job failed", err)
			sleep(ctx, w.opts.PollInterval)
			continue
		}
		if id == "" {
			continue
		}
		w.process(context.WithoutCancel(ctx), id)
	}
}

// process runs one attempt of job id and records the outcome.
func (w *Worker) process(ctx context.Context, id string) {
	q := w.queue
	job, err := q.backend.Load(ctx, q.name, id)
	if err != nil {
		w.logg.Error(ctx, "load claimed job failed", err)
		_ = q.backend.Ack(ctx, q.name, id)
		return
	}
	ctx = w.logg.WithJob(ctx, q.name, job.ID)

	started := q.now()
	if job.Status == StatusActive && job.Attempts >= job.MaxAttempts {
		finished := started.UTC()
		job.Status = StatusFailed
		job.FailedReason = errStalled.Error()
		job.FinishedAt = &finished
		w.finish(ctx, job, StatusFailed, q.opts.KeepFailed)
		q.metrics.Processed(q.name, metrics.OutcomeFailed, 0)
		w.logg.Error(w.logg.WithField(ctx, "attempts", job.Attempts), "stalled job out of attempts", errStalled)
		if fh, ok := w.handler.(FailureHandler); ok {
			fh.OnFailed(ctx, job, errStalled)
		}
		return
	}
	if job.Status == StatusActive {
		w.logg.Warn(w.logg.WithField(ctx, "attempts", job.Attempts), "redelivering stalled job")
	}

	stopHeartbeat := w.heartbeat(ctx, job.ID)
	job.Attempts++
	job.Status = StatusActive
	job.ProcessedAt = ptrTime(started.UTC())
	if err := q.backend.Save(ctx, job); err != nil {
		w.logg.Error(ctx, "mark job active failed", err)
	}

	runErr := w.run(ctx, job)
	stopHeartbeat()
	finished := q.now().UTC()

	if runErr == nil {
		job.Status = StatusCompleted
		job.FailedReason = ""
		job.FinishedAt = &finished
		w.finish(ctx, job, StatusCompleted, q.opts.KeepCompleted)
		q.metrics.Processed(q.name, metrics.OutcomeCompleted, finished.Sub(started))
		w.logg.Info(ctx, "job completed")
		return
	}

	job.FailedReason = runErr.Error()
	if job.Attempts < job.MaxAttempts && !IsPermanent(runErr) {
		delay := q.backoff(job.Attempts)
		job.Status = StatusDelayed
		if err := q.backend.Save(ctx, job); err != nil {
			w.logg.Error(ctx, "save retried job failed", err)
		}
		if err := q.backend.Ack(ctx, q.name, job.ID); err != nil {
			w.logg.Error(ctx, "ack retried job failed", err)
		}
		if err := q.backend.Schedule(ctx, q.name, job.ID, q.now().Add(delay)); err != nil {
			w.logg.Error(ctx, "reschedule job failed", err)
		}
		q.metrics.Processed(q.name, metrics.OutcomeRetried, finished.Sub(started))
		w.logg.Warn(w.logg.WithFields(ctx, map[string]any{
			"attempt": job.Attempts,
			"backoff": delay.String(),
			"error":   runErr.Error(),
		}), "job attempt failed; retrying")
		return
	}

	job.Status = StatusFailed
	job.FinishedAt = &finished
	w.finish(ctx, job, StatusFailed, q.opts.KeepFailed)
	q.metrics.Processed(q.name, metrics.OutcomeFailed, finished.Sub(started))
	w.logg.Error(w.logg.WithField(ctx, "attempts", job.Attempts), "job failed permanently", runErr)

	if fh, ok := w.handler.(FailureHandler); ok {
		fh.OnFailed(ctx, job, runErr)
	}
}

// heartbeat leases id now and keeps extending the lease until the returned
// stop func is called.
func (w *Worker) heartbeat(ctx context.Context, id string) func() {
	q := w.queue
	extend := func() {
		if err := q.backend.Lease(ctx, q.name, id, q.now().Add(w.opts.Lease)); err != nil {
			w.logg.Warn(w.logg.WithField(ctx, "error", err.Error()), "extend job lease failed")
		}
	}
	extend()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(w.opts.Lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				extend()
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (w *Worker) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return w.handler.Handle(ctx, job, &reporter{backend: w.queue.backend, job: job})
}

func (w *Worker) finish(ctx context.Context, job *Job, status Status, keep int) {
	q := w.queue
	if err := q.backend.Save(ctx, job); err != nil {
		w.logg.Error(ctx, "save finished job failed", err)
	}
	if err := q.backend.Ack(ctx, q.name, job.ID); err != nil {
		w.logg.Error(ctx, "ack finished job failed", err)
	}
	if err := q.backend.Retain(ctx, q.name, status, job.ID, keep); err != nil {
		w.logg.Error(ctx, "retain finished job failed", err)
	}
}

type reporter struct {
	backend Backend
	job     *Job
}

func (r *reporter) Progress(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.job.Progress = percent
	return r.backend.SetProgress(ctx, r.job.Queue, r.job.ID, percent)
}

func ptrTime(t time.Time) *time.Time { return &t }

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
