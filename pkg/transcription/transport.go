package transcription

import "context"

// Alternative is one candidate transcription for a portion of audio,
// carried on a ServerEvent (spec §6.2).
type Alternative struct {
	Content    string
	StartTime  float64
	EndTime    float64
	Type       string // e.g. "pronunciation", "punctuation"
	Confidence float64
	Speaker    string
}

// ServerEvent is one event yielded by Transport.RecvEvents (spec §6.2:
// result id, is_partial flag, alternatives; channel carried alongside for
// the channel-identification attribution described in spec §4.4).
type ServerEvent struct {
	ResultID     string
	IsPartial    bool
	Channel      Channel
	Alternatives []Alternative
}

// Transport is the abstracted ASR streaming contract a concrete transport
// (e.g. a WebSocket client) implements (spec §6.2).
type Transport interface {
	StartStream(ctx context.Context, config Config) (handle string, err error)
	SendAudio(ctx context.Context, handle string, chunk []byte) (SendOutcome, error)
	RecvEvents(ctx context.Context, handle string) (<-chan ServerEvent, error)
	EndStream(ctx context.Context, handle string) error
}
