package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	JobNotificationCleanup = "notification-cleanup"
	JobSubscriptionExpiry  = "subscription-expiry"
	JobOutboxRetention     = "outbox-retention"
)

type notificationPurger interface {
	PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error)
}

type subscriptionExpirer interface {
	ExpireEnded(ctx context.Context) (int64, error)
}

type outboxPruner interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

// NotificationCleanupJob deletes read notifications past the retention window.
type NotificationCleanupJob struct {
	notifications notificationPurger
	retention     time.Duration
	logg          *logger.Logger
}

func NewNotificationCleanupJob(notifications notificationPurger, retentionDays int, logg *logger.Logger) (*NotificationCleanupJob, error) {
	if notifications == nil {
		return nil, errors.New("notifications service required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &NotificationCleanupJob{
		notifications: notifications,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		logg:          logg,
	}, nil
}

func (j *NotificationCleanupJob) Name() string { return JobNotificationCleanup }

func (j *NotificationCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.notifications.PurgeRead(ctx, j.retention)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "read notifications purged")
	return nil
}

// SubscriptionExpiryJob flips subscriptions whose period ended to expired.
type SubscriptionExpiryJob struct {
	subscriptions subscriptionExpirer
	logg          *logger.Logger
}

func NewSubscriptionExpiryJob(subscriptions subscriptionExpirer, logg *logger.Logger) (*SubscriptionExpiryJob, error) {
	if subscriptions == nil {
		return nil, errors.New("subscriptions service required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &SubscriptionExpiryJob{subscriptions: subscriptions, logg: logg}, nil
}

func (j *SubscriptionExpiryJob) Name() string { return JobSubscriptionExpiry }

func (j *SubscriptionExpiryJob) Run(ctx context.Context) error {
	expired, err := j.subscriptions.ExpireEnded(ctx)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "ended subscriptions expired")
	return nil
}

// OutboxRetentionJob drops outbox rows that were published or gave up.
type OutboxRetentionJob struct {
	outbox      outboxPruner
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
	logg        *logger.Logger
}

func NewOutboxRetentionJob(outbox outboxPruner, retentionDays, maxAttempts int, logg *logger.Logger) (*OutboxRetentionJob, error) {
	if outbox == nil {
		return nil, errors.New("outbox repository required")
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", maxAttempts)
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &OutboxRetentionJob{
		outbox:      outbox,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		maxAttempts: maxAttempts,
		now:         time.Now,
		logg:        logg,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return JobOutboxRetention }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.outbox.DeleteSettledBefore(ctx, nil, cutoff, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}), "settled outbox events pruned")
	return nil
}
