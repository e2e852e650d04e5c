// Package push sends FCM notifications to device registration tokens.
package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// MaxTokensPerCall is the FCM multicast limit.
const MaxTokensPerCall = 500

type Message struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// Result aggregates per-token outcomes across every chunk of a send.
type Result struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Sender delivers one message to many tokens.
type Sender interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) (*Result, error)
}

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCMSender struct {
	client    multicastClient
	isInvalid func(error) bool
	logg      *logger.Logger
}

// NewFCMSender initialises a Firebase app from file or inline credentials.
func NewFCMSender(ctx context.Context, cfg config.FirebaseConfig, logg *logger.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var fbCfg *firebase.Config
	if cfg.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return newFCMSender(client, logg), nil
}

func newFCMSender(client multicastClient, logg *logger.Logger) *FCMSender {
	if logg == nil {
		logg = logger.Nop()
	}
	return &FCMSender{client: client, isInvalid: IsInvalidTokenError, logg: logg}
}

// SendMulticast splits tokens into chunks of MaxTokensPerCall. A failing chunk
// does not stop the remaining chunks; the first chunk error is returned
// alongside the partial result.
func (s *FCMSender) SendMulticast(ctx context.Context, tokens []string, msg Message) (*Result, error) {
	result := &Result{}
	if len(tokens) == 0 {
		return result, nil
	}

	var firstErr error
	for _, chunk := range Chunk(tokens, MaxTokensPerCall) {
		resp, err := s.client.SendEachForMulticast(ctx, buildMessage(chunk, msg))
		if err != nil {
			result.FailureCount += len(chunk)
			if firstErr == nil {
				firstErr = fmt.Errorf("fcm multicast: %w", err)
			}
			continue
		}
		result.SuccessCount += resp.SuccessCount
		result.FailureCount += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(chunk) {
				continue
			}
			if s.isInvalid(r.Error) {
				result.InvalidTokens = append(result.InvalidTokens, chunk[i])
			}
		}
	}

	if result.FailureCount > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"push_success":        result.SuccessCount,
			"push_failure":        result.FailureCount,
			"push_invalid_tokens": len(result.InvalidTokens),
		}), "push multicast completed with failures")
	}
	return result, firstErr
}

func buildMessage(tokens []string, msg Message) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
	}
}

// IsInvalidTokenError reports whether FCM rejected a token as unregistered or
// malformed, i.e. it should be removed from the user.
func IsInvalidTokenError(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

// Chunk splits tokens into consecutive slices of at most size entries.
func Chunk(tokens []string, size int) [][]string {
	if size <= 0 {
		size = MaxTokensPerCall
	}
	var out [][]string
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, tokens[start:end])
	}
	return out
}

// NopSender is used when push is disabled by feature flag.
type NopSender struct{}

func (NopSender) SendMulticast(context.Context, []string, Message) (*Result, error) {
	return &Result{}, nil
}
