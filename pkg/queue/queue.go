package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

// Options is the default retry and retention policy of a queue.
type Options struct {
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int
	KeepFailed    int
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.KeepCompleted <= 0 {
		o.KeepCompleted = 20
	}
	if o.KeepFailed <= 0 {
		o.KeepFailed = 5
	}
	return o
}

// EnqueueOptions tweaks a single job.
type EnqueueOptions struct {
	Delay    time.Duration
	Attempts int
}

// Queue is a named durable job queue.
type Queue struct {
	name    string
	backend Backend
	opts    Options
	metrics *metrics.QueueMetrics
	now     func() time.Time
}

// New binds a named queue to a backend.
func New(name string, backend Backend, opts Options, m *metrics.QueueMetrics) (*Queue, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("queue name is required")
	}
	if backend == nil {
		return nil, errors.New("queue backend is required")
	}
	return &Queue{
		name:    name,
		backend: backend,
		opts:    opts.withDefaults(),
		metrics: m,
		now:     time.Now,
	}, nil
}

func (q *Queue) Name() string { return q.name }

// Enqueue persists a job and makes it claimable, after opts.Delay if set.
// Producers are never blocked by queue depth.
func (q *Queue) Enqueue(ctx context.Context, jobName string, data any, opts EnqueueOptions) (*Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s job: %w", jobName, err)
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = q.opts.Attempts
	}

	job := &Job{
		ID:          uuid.NewString(),
		Queue:       q.name,
		Name:        jobName,
		Data:        payload,
		MaxAttempts: attempts,
		Status:      StatusWaiting,
		CreatedAt:   q.now().UTC(),
	}
	if opts.Delay > 0 {
		job.Status = StatusDelayed
	}

	if err := q.backend.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	if opts.Delay > 0 {
		err = q.backend.Schedule(ctx, q.name, job.ID, q.now().Add(opts.Delay))
	} else {
		err = q.backend.Push(ctx, q.name, job.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	q.metrics.Enqueued(q.name)
	return job, nil
}

// Get returns the current record of a job.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.backend.Load(ctx, q.name, id)
}

// backoff returns the wait before retry number attempt (1-based).
func (q *Queue) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.opts.Backoff * time.Duration(1<<(attempt-1))
}
