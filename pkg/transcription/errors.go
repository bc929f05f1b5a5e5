package transcription

import "errors"

// SendOutcome classifies the transport's response to send_audio (spec
// §6.2).
type SendOutcome string

const (
	SendOK                 SendOutcome = "ok"
	SendThrottled          SendOutcome = "throttled"
	SendServiceUnavailable SendOutcome = "service_unavailable"
	SendBadRequest         SendOutcome = "bad_request"
	SendTransportError     SendOutcome = "transport_error"
)

var (
	// ErrInvalidTransition is returned when a client method is called
	// outside the state it requires (spec §4.4 state machine).
	ErrInvalidTransition = errors.New("transcription: invalid state transition")

	// ErrNotStreaming is returned when ProcessAudio is called outside the
	// STREAMING state.
	ErrNotStreaming = errors.New("transcription: client is not streaming")

	// ErrRetriesExhausted is returned when a retryable send still fails
	// after max_retries retries (max_retries+1 attempts in all).
	ErrRetriesExhausted = errors.New("transcription: retries exhausted")

	// ErrBadRequest wraps a non-retryable transport rejection (spec §4.4
	// retry policy, bad_request fails fast).
	ErrBadRequest = errors.New("transcription: bad request")

	// ErrOrderingViolation is returned when a retry is attempted after a
	// later chunk has already been sent (spec §4.4 at-most-once guarantee).
	ErrOrderingViolation = errors.New("transcription: retry would violate chunk ordering")

	// ErrSessionNotFound is returned by store operations on an unknown
	// session id.
	ErrSessionNotFound = errors.New("transcription: session not found")
)
