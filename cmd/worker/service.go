package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bazaar-backend/internal/notifications"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
)

type pinger func(ctx context.Context) error

type ServiceParams struct {
	Logger               *logger.Logger
	UploadWorker         *queue.Worker
	EmailWorker          *queue.Worker
	NotificationConsumer *notifications.Consumer
	Dependencies         map[string]pinger
}

// Service runs the queue workers and the listing event consumer side by side.
// The first runner to fail stops the others. The email worker is optional.
type Service struct {
	logg         *logger.Logger
	uploads      *queue.Worker
	emails       *queue.Worker
	consumer     *notifications.Consumer
	dependencies map[string]pinger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.UploadWorker == nil {
		return nil, errors.New("image upload worker is required")
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		logg:         params.Logger,
		uploads:      params.UploadWorker,
		emails:       params.EmailWorker,
		consumer:     params.NotificationConsumer,
		dependencies: params.Dependencies,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for name, ping := range s.dependencies {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.uploads.Run(ctx) })
	if s.emails != nil {
		group.Go(func() error { return s.emails.Run(ctx) })
	}
	group.Go(func() error { return s.consumer.Run(ctx) })

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "worker runner stopped unexpectedly", err)
	}
	return err
}
