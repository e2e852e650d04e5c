package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/queue"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestRenderIncludesImageAndCTA(t *testing.T) {
	html, err := Render(Email{
		Subject:  "New listing",
		Message:  "A new listing <b>arrived</b>",
		ImageURL: "https://cdn.example.com/a.png",
		CTAURL:   "https://bazaar.local/listings/red-bike-ab12cd",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"<h2 style=\"margin-top:0;\">New listing</h2>",
		"https://cdn.example.com/a.png",
		"https://bazaar.local/listings/red-bike-ab12cd",
		">View</a>",
		"A new listing &lt;b&gt;arrived&lt;/b&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected rendered html to contain %q\n%s", want, html)
		}
	}
}

func TestRenderOmitsOptionalBlocks(t *testing.T) {
	html, err := Render(Email{Subject: "s", Title: "t", Message: "m"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(html, "<img") || strings.Contains(html, "<a ") {
		t.Fatalf("expected no image or link blocks\n%s", html)
	}
}

func TestSMTPSenderSend(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{dialer: d, from: "no-reply@bazaar.local", fromName: "Bazaar"}

	if err := s.Send(context.Background(), Email{To: "a@b.c", Subject: "hello", Message: "m"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(d.sent))
	}
	if got := d.sent[0].GetHeader("To"); len(got) != 1 || got[0] != "a@b.c" {
		t.Fatalf("unexpected To header %v", got)
	}

	if err := s.Send(context.Background(), Email{Subject: "no recipient"}); err == nil {
		t.Fatal("expected validation error for missing recipient")
	}

	d.err = errors.New("connection refused")
	if err := s.Send(context.Background(), Email{To: "a@b.c", Subject: "x"}); err == nil {
		t.Fatal("expected dial error")
	}
}

type captureSender struct {
	got []Email
	err error
}

func (c *captureSender) Send(_ context.Context, e Email) error {
	c.got = append(c.got, e)
	return c.err
}

func TestQueueSenderAndProcessor(t *testing.T) {
	ctx := context.Background()
	backend := queue.NewMemoryBackend()
	q, err := queue.New(queue.QueueEmail, backend, queue.Options{}, nil)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	qs, _ := NewQueueSender(q)

	email := Email{To: "u@example.com", Subject: "New listing", Message: "m"}
	if err := qs.Send(ctx, email); err != nil {
		t.Fatalf("QueueSender.Send: %v", err)
	}
	ids := backend.Waiting(queue.QueueEmail)
	if len(ids) != 1 {
		t.Fatalf("expected one waiting job, got %d", len(ids))
	}

	job, err := q.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Name != JobSendEmail {
		t.Fatalf("unexpected job name %q", job.Name)
	}

	smtp := &captureSender{}
	proc, _ := NewProcessor(smtp, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err := proc.Handle(ctx, job, nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(smtp.got) != 1 || smtp.got[0] != email {
		t.Fatalf("unexpected delivered emails %+v", smtp.got)
	}
}

func TestProcessorRejectsMalformedJobsPermanently(t *testing.T) {
	proc, _ := NewProcessor(&captureSender{}, logger.Nop())

	job := &queue.Job{ID: "j1", Data: json.RawMessage(`{"subject":"x"}`)}
	err := proc.Handle(context.Background(), job, nil)
	if !queue.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestProcessorReturnsTransientErrors(t *testing.T) {
	proc, _ := NewProcessor(&captureSender{err: errors.New("smtp timeout")}, logger.Nop())

	job := &queue.Job{ID: "j2", Data: json.RawMessage(`{"to":"a@b.c","subject":"x"}`)}
	err := proc.Handle(context.Background(), job, nil)
	if err == nil || queue.IsPermanent(err) {
		t.Fatalf("expected retriable error, got %v", err)
	}
}
