package audio

import "errors"

var (
	// ErrSampleMisalignment is returned when a chunk's byte length is not a
	// multiple of the configured frame size (spec §3 AudioChunk invariant).
	ErrSampleMisalignment = errors.New("audio: sample data misaligned to frame size")

	// ErrUnknownChannel is returned by buffer operations given a channel key
	// the buffer was not configured with.
	ErrUnknownChannel = errors.New("audio: unknown channel")

	// ErrBufferClosed is returned by RingBuffer.Write after Close.
	ErrBufferClosed = errors.New("audio: buffer closed")

	// ErrUnderrun names the underrun condition. RingBuffer.Read does not
	// return it: an underrun is reported as (nil, false) and counted in
	// Metrics.UnderrunCount.
	ErrUnderrun = errors.New("audio: underrun")
)
