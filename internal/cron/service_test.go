package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

type memoryLockStore struct {
	values map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryLockStore) LockKey(name string) string {
	return redis.BuildKey("lock", name)
}

type recordingJob struct {
	name  string
	err   error
	calls *[]string
}

func (j recordingJob) Name() string { return j.name }

func (j recordingJob) Run(context.Context) error {
	*j.calls = append(*j.calls, j.name)
	return j.err
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "cron", time.Minute)
	ctx := context.Background()

	if ok, _ := first.Acquire(ctx); !ok {
		t.Fatal("first acquire must succeed")
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second acquire must fail while held")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	if _, held := store.values[first.Key()]; !held {
		t.Fatal("non-holder release must not delete the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("acquire after release must succeed")
	}
}

func TestRedisLockLeavesForeignHolder(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire must succeed")
	}
	store.values[lock.Key()] = "someone-else"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if store.values[lock.Key()] != "someone-else" {
		t.Fatal("expired lease taken by another instance must survive")
	}
}

func TestRunOnceRunsJobsInOrderAndContinuesAfterFailure(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	var calls []string
	svc, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		Lock:   lock,
		Jobs: []Job{
			recordingJob{name: "a", calls: &calls},
			recordingJob{name: "b", err: errors.New("boom"), calls: &calls},
			nil,
			recordingJob{name: "c", calls: &calls},
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ran, err := svc.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
	if len(calls) != 3 || calls[0] != "a" || calls[1] != "b" || calls[2] != "c" {
		t.Fatalf("unexpected call order %v", calls)
	}
	if len(store.values) != 0 {
		t.Fatal("lock must be released after the cycle")
	}
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	holder, _ := NewRedisLock(store, "cron", time.Minute)
	if ok, _ := holder.Acquire(context.Background()); !ok {
		t.Fatal("holder acquire must succeed")
	}
	lock, _ := NewRedisLock(store, "cron", time.Minute)
	var calls []string
	svc, _ := NewService(ServiceParams{
		Logger: logger.Nop(),
		Lock:   lock,
		Jobs:   []Job{recordingJob{name: "a", calls: &calls}},
	})

	ran, err := svc.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected skipped cycle, ran=%v err=%v", ran, err)
	}
	if len(calls) != 0 {
		t.Fatalf("jobs must not run without the lock: %v", calls)
	}
}

type fakePurger struct{ olderThan time.Duration }

func (f *fakePurger) PurgeRead(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 4, nil
}

type fakeExpirer struct {
	calls int
	err   error
}

func (f *fakeExpirer) ExpireEnded(context.Context) (int64, error) {
	f.calls++
	return 1, f.err
}

type fakePruner struct {
	cutoff   time.Time
	attempts int
}

func (f *fakePruner) DeleteSettledBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, attempts int) (int64, error) {
	f.cutoff, f.attempts = cutoff, attempts
	return 2, nil
}

func TestNotificationCleanupJobUsesRetentionDays(t *testing.T) {
	purger := &fakePurger{}
	job, err := NewNotificationCleanupJob(purger, 30, nil)
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if purger.olderThan != 30*24*time.Hour {
		t.Fatalf("unexpected retention %s", purger.olderThan)
	}
	if _, err := NewNotificationCleanupJob(purger, 0, nil); err == nil {
		t.Fatal("expected error for zero retention")
	}
}

func TestSubscriptionExpiryJobPropagatesErrors(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	job, _ := NewSubscriptionExpiryJob(expirer, nil)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if expirer.calls != 1 || job.Name() != JobSubscriptionExpiry {
		t.Fatalf("unexpected job state calls=%d name=%s", expirer.calls, job.Name())
	}
}

func TestOutboxRetentionJobComputesCutoff(t *testing.T) {
	pruner := &fakePruner{}
	job, err := NewOutboxRetentionJob(pruner, 7, 10, nil)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !pruner.cutoff.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", pruner.cutoff)
	}
	if pruner.attempts != 10 {
		t.Fatalf("unexpected attempts %d", pruner.attempts)
	}
}
