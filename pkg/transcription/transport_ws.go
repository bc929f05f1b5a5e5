package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// wireEvent is the JSON shape a streaming ASR endpoint sends over its text
// frames (spec §6.2 event fields).
type wireEvent struct {
	ResultID     string `json:"result_id"`
	IsPartial    bool   `json:"is_partial"`
	Channel      string `json:"channel,omitempty"`
	Alternatives []struct {
		Content    string  `json:"content"`
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
		Speaker    string  `json:"speaker,omitempty"`
	} `json:"alternatives"`
}

type wsSession struct {
	conn *websocket.Conn
}

// WSTransport implements Transport over a JSON/binary WebSocket protocol:
// the start-stream config is sent as one JSON text frame, audio chunks are
// sent as binary frames, and server results arrive as JSON text frames
// (spec §6.2, grounded on the teacher's websocket.Dial/wsjson usage in
// pkg/providers/tts/lokutor.go).
type WSTransport struct {
	Endpoint string
	Headers  map[string]string

	mu       sync.Mutex
	sessions map[string]*wsSession
}

// NewWSTransport constructs a WSTransport dialing endpoint for every
// StartStream call.
func NewWSTransport(endpoint string, headers map[string]string) *WSTransport {
	return &WSTransport{
		Endpoint: endpoint,
		Headers:  headers,
		sessions: make(map[string]*wsSession),
	}
}

func (t *WSTransport) StartStream(ctx context.Context, config Config) (string, error) {
	u, err := url.Parse(t.Endpoint)
	if err != nil {
		return "", fmt.Errorf("transcription: invalid endpoint: %w", err)
	}

	var opts *websocket.DialOptions
	if len(t.Headers) > 0 {
		opts = &websocket.DialOptions{HTTPHeader: headerSet(t.Headers)}
	}

	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return "", fmt.Errorf("transcription: dial: %w", err)
	}

	if err := wsjson.Write(ctx, conn, config); err != nil {
		conn.Close(websocket.StatusAbnormalClosure, "failed to send config")
		return "", fmt.Errorf("transcription: send config: %w", err)
	}

	handle := uuid.New().String()
	t.mu.Lock()
	t.sessions[handle] = &wsSession{conn: conn}
	t.mu.Unlock()

	return handle, nil
}

func (t *WSTransport) get(handle string) (*wsSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[handle]
	return s, ok
}

func (t *WSTransport) SendAudio(ctx context.Context, handle string, chunk []byte) (SendOutcome, error) {
	sess, ok := t.get(handle)
	if !ok {
		return SendTransportError, fmt.Errorf("transcription: unknown handle %q", handle)
	}

	err := sess.conn.Write(ctx, websocket.MessageBinary, chunk)
	if err == nil {
		return SendOK, nil
	}
	return classifySendError(err), err
}

// classifySendError maps a transport-level failure to the SendOutcome the
// client's retry policy acts on (spec §4.4), using the close status the
// server attached: policy violation is bad_request, try-again-later is
// throttled, and service restart is service_unavailable. Every other write
// failure is transport_error.
func classifySendError(err error) SendOutcome {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.StatusPolicyViolation:
			return SendBadRequest
		case websocket.StatusTryAgainLater:
			return SendThrottled
		case websocket.StatusServiceRestart:
			return SendServiceUnavailable
		}
	}
	return SendTransportError
}

func (t *WSTransport) RecvEvents(ctx context.Context, handle string) (<-chan ServerEvent, error) {
	sess, ok := t.get(handle)
	if !ok {
		return nil, fmt.Errorf("transcription: unknown handle %q", handle)
	}

	out := make(chan ServerEvent)
	go func() {
		defer close(out)
		for {
			_, payload, err := sess.conn.Read(ctx)
			if err != nil {
				return
			}

			var we wireEvent
			if err := json.Unmarshal(payload, &we); err != nil {
				continue
			}

			alts := make([]Alternative, 0, len(we.Alternatives))
			for _, a := range we.Alternatives {
				alts = append(alts, Alternative{
					Content:    a.Content,
					StartTime:  a.StartTime,
					EndTime:    a.EndTime,
					Type:       a.Type,
					Confidence: a.Confidence,
					Speaker:    a.Speaker,
				})
			}

			event := ServerEvent{
				ResultID:     we.ResultID,
				IsPartial:    we.IsPartial,
				Channel:      Channel(we.Channel),
				Alternatives: alts,
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (t *WSTransport) EndStream(ctx context.Context, handle string) error {
	sess, ok := t.get(handle)
	if !ok {
		return nil
	}
	t.mu.Lock()
	delete(t.sessions, handle)
	t.mu.Unlock()
	return sess.conn.Close(websocket.StatusNormalClosure, "")
}

func headerSet(headers map[string]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, v := range headers {
		out[k] = []string{v}
	}
	return out
}
