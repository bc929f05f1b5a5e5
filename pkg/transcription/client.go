package transcription

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/lokutor-ai/assist-core/pkg/bus"
	"github.com/lokutor-ai/assist-core/pkg/logging"
)

// RetryPolicy tunes backoff for throttled/service_unavailable/transport_error
// sends (spec §4.4 retry policy).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy mirrors the teacher's TranscribeManager defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// Client drives one streaming ASR session: state machine, chunk pacing,
// retrying sends, and translating server events into Results (spec §4.4
// C4, grounded on original_source's TranscribeManager.process_audio and
// the teacher's ManagedStream.Write serialization idiom).
type Client struct {
	mu     sync.Mutex
	state  State
	config Config
	policy RetryPolicy
	sendMu sync.Mutex // held for a whole ProcessAudio call, retries included

	transport Transport
	handle    string
	sessionID string
	sentSeq   uint64

	cancelRecv context.CancelFunc
	bus        *bus.Bus
	logger     logging.Logger

	onResult func(Result)
}

// NewClient constructs an idle Client bound to transport.
func NewClient(transport Transport, config Config, policy RetryPolicy, eventBus *bus.Bus, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Client{
		state:     StateIdle,
		config:    config,
		policy:    policy,
		transport: transport,
		bus:       eventBus,
		logger:    logger,
	}
}

// OnResult registers the callback invoked for every translated Result
// (partial or stable). Must be set before StartStream.
func (c *Client) OnResult(fn func(Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResult = fn
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartStream moves IDLE→STARTING→STREAMING, opening the transport
// session and launching the background event-translation loop (spec
// §4.4).
func (c *Client) StartStream(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.state = StateStarting
	c.sessionID = sessionID
	c.mu.Unlock()

	handle, err := c.transport.StartStream(ctx, c.config)
	if err != nil {
		c.setState(StateError)
		return err
	}

	recvCtx, cancel := context.WithCancel(ctx)
	events, err := c.transport.RecvEvents(recvCtx, handle)
	if err != nil {
		cancel()
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	c.handle = handle
	c.sentSeq = 0
	c.state = StateStreaming
	c.cancelRecv = cancel
	c.mu.Unlock()

	go c.translateLoop(events)
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) translateLoop(events <-chan ServerEvent) {
	for ev := range events {
		result := translateEvent(c.sessionID, ev)
		c.mu.Lock()
		cb := c.onResult
		c.mu.Unlock()
		if cb != nil {
			cb(result)
		}
		if c.bus != nil {
			c.bus.Publish(bus.New(bus.Transcript, map[string]any{
				"result_id":  result.ResultID,
				"is_partial": result.IsPartial,
			}).WithSession(c.sessionID))
		}
	}
}

func translateEvent(sessionID string, ev ServerEvent) Result {
	words := make([]Word, 0, len(ev.Alternatives))
	var confidenceSum float64
	var text string
	for _, alt := range ev.Alternatives {
		words = append(words, Word{
			Content:    alt.Content,
			Confidence: alt.Confidence,
			StartTime:  alt.StartTime,
			EndTime:    alt.EndTime,
			Speaker:    alt.Speaker,
			Stable:     !ev.IsPartial,
		})
		confidenceSum += alt.Confidence
		if text != "" {
			text += " "
		}
		text += alt.Content
	}
	var avgConfidence float64
	if len(ev.Alternatives) > 0 {
		avgConfidence = confidenceSum / float64(len(ev.Alternatives))
	}

	var segments []SpeakerSegment
	if len(words) > 0 {
		segments = []SpeakerSegment{{
			Speaker:    words[0].Speaker,
			Channel:    ev.Channel,
			StartTime:  words[0].StartTime,
			EndTime:    words[len(words)-1].EndTime,
			Transcript: text,
			Confidence: avgConfidence,
			Words:      words,
		}}
	}

	return Result{
		SessionID:  sessionID,
		ResultID:   ev.ResultID,
		Segments:   segments,
		Words:      words,
		IsPartial:  ev.IsPartial,
		Confidence: avgConfidence,
		ServerTime: time.Now(),
	}
}

// ProcessAudio sends one audio chunk, retrying throttled,
// service_unavailable and transport_error failures with exponential backoff
// up to policy.MaxRetries retries, and failing fast on bad_request (spec
// §4.4 retry policy). Calls are internally serialized, which is what makes
// the at-most-once/no-reorder guarantee on retries hold: a retry can only
// run before the next chunk's send begins.
func (c *Client) ProcessAudio(ctx context.Context, chunk []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return ErrNotStreaming
	}
	handle := c.handle
	seqAtEntry := c.sentSeq
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		c.mu.Lock()
		if c.sentSeq != seqAtEntry {
			c.mu.Unlock()
			return ErrOrderingViolation
		}
		c.mu.Unlock()

		outcome, err := c.transport.SendAudio(ctx, handle, chunk)
		switch outcome {
		case SendOK:
			c.mu.Lock()
			c.sentSeq++
			c.mu.Unlock()
			return nil
		case SendBadRequest:
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		case SendThrottled, SendServiceUnavailable, SendTransportError:
			lastErr = err
			if attempt == c.policy.MaxRetries {
				continue
			}
			delay := time.Duration(math.Pow(2, float64(attempt))) * c.policy.BaseDelay
			c.logger.Warn("transcription send retrying", "outcome", string(outcome), "attempt", attempt, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			lastErr = err
		}
	}
	if lastErr == nil {
		return ErrRetriesExhausted
	}
	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// StopStream moves STREAMING→STOPPING→IDLE and tells the transport to end
// the session.
func (c *Client) StopStream(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.state = StateStopping
	handle := c.handle
	cancel := c.cancelRecv
	c.mu.Unlock()

	err := c.transport.EndStream(ctx, handle)
	if cancel != nil {
		cancel()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	return err
}
