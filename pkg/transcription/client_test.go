package transcription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	outcomes  []SendOutcome // consumed in order, repeats last entry once exhausted
	sendCalls int
	events    chan ServerEvent
	ended     bool
}

func newFakeTransport(outcomes ...SendOutcome) *fakeTransport {
	return &fakeTransport{outcomes: outcomes, events: make(chan ServerEvent, 16)}
}

func (f *fakeTransport) StartStream(ctx context.Context, config Config) (string, error) {
	return "handle-1", nil
}

func (f *fakeTransport) SendAudio(ctx context.Context, handle string, chunk []byte) (SendOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.sendCalls
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	f.sendCalls++
	outcome := f.outcomes[idx]
	if outcome != SendOK {
		return outcome, assertErr(outcome)
	}
	return outcome, nil
}

func assertErr(o SendOutcome) error {
	return &outcomeError{o}
}

type outcomeError struct{ o SendOutcome }

func (e *outcomeError) Error() string { return string(e.o) }

func (f *fakeTransport) RecvEvents(ctx context.Context, handle string) (<-chan ServerEvent, error) {
	return f.events, nil
}

func (f *fakeTransport) EndStream(ctx context.Context, handle string) error {
	f.ended = true
	close(f.events)
	return nil
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
}

func TestClient_StartStream_MovesIdleToStreaming(t *testing.T) {
	transport := newFakeTransport(SendOK)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)

	require.NoError(t, c.StartStream(context.Background(), "sess-1"))
	assert.Equal(t, StateStreaming, c.State())
}

func TestClient_ProcessAudio_RequiresStreamingState(t *testing.T) {
	transport := newFakeTransport(SendOK)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)

	err := c.ProcessAudio(context.Background(), []byte{1, 2})
	assert.ErrorIs(t, err, ErrNotStreaming)
}

func TestClient_ProcessAudio_RetriesThrottledThenSucceeds(t *testing.T) {
	transport := newFakeTransport(SendThrottled, SendThrottled, SendOK)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)
	require.NoError(t, c.StartStream(context.Background(), "sess-1"))

	err := c.ProcessAudio(context.Background(), []byte{1, 2})
	assert.NoError(t, err)
	assert.Equal(t, 3, transport.sendCalls)
}

func TestClient_ProcessAudio_BadRequestFailsFast(t *testing.T) {
	transport := newFakeTransport(SendBadRequest)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)
	require.NoError(t, c.StartStream(context.Background(), "sess-1"))

	err := c.ProcessAudio(context.Background(), []byte{1, 2})
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, 1, transport.sendCalls)
}

func TestClient_ProcessAudio_ExhaustsRetriesOnPersistentThrottling(t *testing.T) {
	transport := newFakeTransport(SendThrottled, SendThrottled, SendThrottled)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)
	require.NoError(t, c.StartStream(context.Background(), "sess-1"))

	err := c.ProcessAudio(context.Background(), []byte{1, 2})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestClient_TranslateLoop_DeliversPartialAndStableResults(t *testing.T) {
	transport := newFakeTransport(SendOK)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)

	var mu sync.Mutex
	var got []Result
	c.OnResult(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
	})

	require.NoError(t, c.StartStream(context.Background(), "sess-1"))
	transport.events <- ServerEvent{ResultID: "r1", IsPartial: true, Alternatives: []Alternative{{Content: "hel", Confidence: 0.5}}}
	transport.events <- ServerEvent{ResultID: "r1", IsPartial: false, Alternatives: []Alternative{{Content: "hello", Confidence: 0.9}}}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, got[0].IsPartial)
	assert.False(t, got[1].IsPartial)
	assert.Equal(t, "hello", got[1].Words[0].Content)
}

func TestClient_StopStream_EndsTransportAndReturnsIdle(t *testing.T) {
	transport := newFakeTransport(SendOK)
	c := NewClient(transport, DefaultConfig(), fastPolicy(), nil, nil)
	require.NoError(t, c.StartStream(context.Background(), "sess-1"))

	require.NoError(t, c.StopStream(context.Background()))
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, transport.ended)
}
