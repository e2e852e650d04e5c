package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnregistered = errors.New("registration-token-not-registered")

type fakeMulticast struct {
	calls   [][]string
	invalid map[string]bool
	failOn  int
}

func (f *fakeMulticast) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.calls = append(f.calls, m.Tokens)
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, errors.New("unavailable")
	}
	resp := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if f.invalid[tok] {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: errUnregistered})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return resp, nil
}

func newTestSender(client multicastClient) *FCMSender {
	s := newFCMSender(client, nil)
	s.isInvalid = func(err error) bool { return errors.Is(err, errUnregistered) }
	return s
}

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("tok-%04d", i)
	}
	return out
}

func TestSendMulticastChunksAt500(t *testing.T) {
	client := &fakeMulticast{}
	sender := newTestSender(client)

	res, err := sender.SendMulticast(context.Background(), tokens(1201), Message{Title: "New listing"})
	require.NoError(t, err)

	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0], 500)
	assert.Len(t, client.calls[1], 500)
	assert.Len(t, client.calls[2], 201)
	assert.Equal(t, 1201, res.SuccessCount)
	assert.Empty(t, res.InvalidTokens)
}

func TestSendMulticastCollectsInvalidTokens(t *testing.T) {
	all := tokens(600)
	client := &fakeMulticast{invalid: map[string]bool{all[3]: true, all[550]: true}}
	sender := newTestSender(client)

	res, err := sender.SendMulticast(context.Background(), all, Message{Title: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{all[3], all[550]}, res.InvalidTokens)
	assert.Equal(t, 598, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
}

func TestSendMulticastContinuesAfterChunkError(t *testing.T) {
	client := &fakeMulticast{failOn: 1}
	sender := newTestSender(client)

	res, err := sender.SendMulticast(context.Background(), tokens(700), Message{})
	require.Error(t, err)
	require.Len(t, client.calls, 2)
	assert.Equal(t, 500, res.FailureCount)
	assert.Equal(t, 200, res.SuccessCount)
}

func TestSendMulticastNoTokens(t *testing.T) {
	client := &fakeMulticast{}
	res, err := newTestSender(client).SendMulticast(context.Background(), nil, Message{})
	require.NoError(t, err)
	assert.Empty(t, client.calls)
	assert.Zero(t, res.SuccessCount)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk(nil, 500))
	assert.Len(t, Chunk(tokens(1000), 500), 2)
	assert.Len(t, Chunk(tokens(3), 0), 1)
}

func TestIsInvalidTokenErrorNil(t *testing.T) {
	assert.False(t, IsInvalidTokenError(nil))
	assert.False(t, IsInvalidTokenError(errors.New("plain")))
}
