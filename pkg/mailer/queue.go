package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
)

// JobSendEmail is the job name used on the email queue.
const JobSendEmail = "send-email"

// QueueSender enqueues emails instead of dialing SMTP on the request path.
type QueueSender struct {
	queue *queue.Queue
}

func NewQueueSender(q *queue.Queue) (*QueueSender, error) {
	if q == nil {
		return nil, errors.New("email queue required")
	}
	return &QueueSender{queue: q}, nil
}

func (s *QueueSender) Send(ctx context.Context, email Email) error {
	if err := email.validate(); err != nil {
		return err
	}
	if _, err := s.queue.Enqueue(ctx, JobSendEmail, email, queue.EnqueueOptions{}); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// Processor drains the email queue through an SMTP sender.
type Processor struct {
	sender Sender
	logg   *logger.Logger
}

func NewProcessor(sender Sender, logg *logger.Logger) (*Processor, error) {
	if sender == nil {
		return nil, errors.New("email sender required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Processor{sender: sender, logg: logg}, nil
}

func (p *Processor) Handle(ctx context.Context, job *queue.Job, _ queue.Reporter) error {
	var email Email
	if err := job.Decode(&email); err != nil {
		return queue.Permanent(fmt.Errorf("decode email job: %w", err))
	}
	if err := email.validate(); err != nil {
		return queue.Permanent(err)
	}
	if err := p.sender.Send(ctx, email); err != nil {
		return err
	}
	p.logg.Info(p.logg.WithField(ctx, "email_subject", email.Subject), "email sent")
	return nil
}

func (p *Processor) OnFailed(ctx context.Context, job *queue.Job, err error) {
	p.logg.Error(p.logg.WithField(ctx, "attempts", job.Attempts), "email delivery abandoned", err)
}
