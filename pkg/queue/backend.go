package queue

import (
	"context"
	"time"
)

// Backend stores job records and the per-queue wait/delayed/active sets.
type Backend interface {
	Save(ctx context.Context, job *Job) error
	Load(ctx context.Context, queue, id string) (*Job, error)
	SetProgress(ctx context.Context, queue, id string, progress int) error

	// Push makes a job immediately claimable.
	Push(ctx context.Context, queue, id string) error
	// Schedule makes a job claimable once at has passed.
	Schedule(ctx context.Context, queue, id string, at time.Time) error
	// PromoteDue moves scheduled jobs whose time has come into the wait list.
	PromoteDue(ctx context.Context, queue string, now time.Time) (int, error)
	// Claim blocks up to timeout for a waiting job and marks it active. It
	// returns "" when nothing became available.
	Claim(ctx context.Context, queue string, timeout time.Duration) (string, error)
	// Lease records that the claimer of an active job is alive until until.
	Lease(ctx context.Context, queue, id string, until time.Time) error
	// RequeueStalled moves active jobs whose lease ran out before now back to
	// the wait list and returns their ids. Active jobs without any lease are
	// given one ending at now+lease.
	RequeueStalled(ctx context.Context, queue string, now time.Time, lease time.Duration) ([]string, error)
	// Ack removes a job from the active set and drops its lease.
	Ack(ctx context.Context, queue, id string) error
	// Retain records a finished job id and purges records beyond keep.
	Retain(ctx context.Context, queue string, status Status, id string, keep int) error
}
