package audio

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/lokutor-ai/assist-core/pkg/bus"
	"github.com/lokutor-ai/assist-core/pkg/logging"
)

// Metrics tracks cumulative counters for one RingBuffer (spec §3
// BufferMetrics).
type Metrics struct {
	TotalBytesWritten uint64
	TotalBytesRead    uint64
	OverflowCount     uint64
	UnderrunCount     uint64
}

// Status is a point-in-time snapshot of buffer fill levels and latency,
// keyed by channel (spec §3 BufferStatus).
type Status struct {
	Levels         map[Channel]float64 // percent full, 0-100
	LatenciesMS    map[Channel]float64
	ActiveChannels map[Channel]bool
	Metrics        Metrics
}

type channelBuffer struct {
	ring        *ringbuffer.RingBuffer
	size        int
	capacity    int
	lastWriteAt time.Time
	lastReadAt  time.Time
}

// RingBuffer is a bounded, per-channel byte FIFO that backs the raw audio
// path between capture and the transcription client (spec §4.2 C2). Writes
// beyond capacity drop the oldest bytes of that channel (spec §3, §8
// property 2); reads below capacity either block (ReadStream) or report an
// underrun (Read).
type RingBuffer struct {
	mu        sync.Mutex
	config    Config
	maxSize   int
	chunkSize int
	buffers   map[Channel]*channelBuffer
	metrics   Metrics
	closed    bool

	bus    *bus.Bus
	logger logging.Logger
}

// Option configures a RingBuffer at construction time.
type Option func(*RingBuffer)

// WithBus attaches an event bus that receives an AudioChunk event after
// every write and read, mirroring the teacher's buffer-status broadcasts.
func WithBus(b *bus.Bus) Option {
	return func(r *RingBuffer) { r.bus = b }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(r *RingBuffer) { r.logger = l }
}

// WithMaxSize overrides the default 32KiB per-channel capacity.
func WithMaxSize(n int) Option {
	return func(r *RingBuffer) { r.maxSize = n }
}

// WithChunkSize overrides the default 1KiB read chunk size.
func WithChunkSize(n int) Option {
	return func(r *RingBuffer) { r.chunkSize = n }
}

const (
	defaultMaxSize   = 32 * 1024
	defaultChunkSize = 1024
)

// NewRingBuffer constructs a RingBuffer with channels "main", "ch_0", and
// (when cfg.Channels > 1) "ch_1" (spec §3 RingBuffer state).
func NewRingBuffer(cfg Config, opts ...Option) *RingBuffer {
	r := &RingBuffer{
		config:    cfg,
		maxSize:   defaultMaxSize,
		chunkSize: defaultChunkSize,
		buffers:   make(map[Channel]*channelBuffer),
		logger:    logging.NoOp{},
	}
	for _, opt := range opts {
		opt(r)
	}

	channels := []Channel{ChannelMain, ChannelMic}
	if cfg.Channels > 1 {
		channels = append(channels, ChannelDesk)
	}
	for _, ch := range channels {
		r.buffers[ch] = &channelBuffer{
			ring:     ringbuffer.New(r.maxSize),
			capacity: r.maxSize,
		}
	}
	return r
}

func (r *RingBuffer) channel(key Channel) Channel {
	if key == "" {
		return ChannelMain
	}
	return key
}

// Write appends data to the named channel (ChannelMain if empty), evicting
// the oldest bytes of that channel when it would overflow. It returns
// ErrSampleMisalignment if len(data) is not frame-aligned, and increments
// OverflowCount at most once per call even if multiple evictions were
// needed (spec §3 BufferMetrics.overflow_count, §8 property 2).
func (r *RingBuffer) Write(data []byte, channel Channel) error {
	if err := ValidateAlignment(data, r.config.FrameSize()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrBufferClosed
	}

	key := r.channel(channel)
	cb, ok := r.buffers[key]
	if !ok {
		return ErrUnknownChannel
	}

	if cb.size+len(data) > cb.capacity {
		r.metrics.OverflowCount++
		discard := make([]byte, r.chunkSize)
		for cb.size+len(data) > cb.capacity && cb.size > 0 {
			want := len(discard)
			if want > cb.size {
				want = cb.size
			}
			n, _ := cb.ring.Read(discard[:want])
			cb.size -= n
			if n == 0 {
				break
			}
		}
	}

	n, err := cb.ring.Write(data)
	cb.size += n
	cb.lastWriteAt = time.Now()
	r.metrics.TotalBytesWritten += uint64(n)

	r.publish("write_complete", n)
	return err
}

// Read returns exactly size bytes (r.chunkSize if size<=0) from channel. If
// fewer bytes than requested are currently available it increments
// UnderrunCount and returns (nil, false) rather than blocking (spec §3
// AudioBuffer.read contract, no timeout). Use ReadStream to block for data.
func (r *RingBuffer) Read(size int, channel Channel) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked(size, channel)
}

func (r *RingBuffer) readLocked(size int, channel Channel) ([]byte, bool) {
	if size <= 0 {
		size = r.chunkSize
	}
	key := r.channel(channel)
	cb, ok := r.buffers[key]
	if !ok {
		return nil, false
	}
	if cb.size < size {
		r.metrics.UnderrunCount++
		return nil, false
	}

	out := make([]byte, size)
	n, _ := cb.ring.Read(out)
	cb.size -= n
	cb.lastReadAt = time.Now()
	r.metrics.TotalBytesRead += uint64(n)
	r.publish("read_complete", n)
	return out[:n], true
}

// ReadBlocking behaves like Read but polls for up to timeout for enough
// data to accumulate instead of failing immediately, matching the
// teacher's timeout parameter to AudioBuffer.read. A zero timeout behaves
// like Read.
func (r *RingBuffer) ReadBlocking(ctx context.Context, size int, channel Channel, timeout time.Duration) ([]byte, bool) {
	if timeout <= 0 {
		return r.Read(size, channel)
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = time.Millisecond

	for {
		r.mu.Lock()
		key := r.channel(channel)
		cb, ok := r.buffers[key]
		if !ok {
			r.mu.Unlock()
			return nil, false
		}
		want := size
		if want <= 0 {
			want = r.chunkSize
		}
		ready := cb.size >= want || r.closed
		timedOut := time.Now().After(deadline)
		if ready || timedOut {
			out, got := r.readLocked(size, channel)
			r.mu.Unlock()
			return out, got
		}
		r.mu.Unlock()

		select {
		case <-time.After(pollInterval):
		case <-ctxDone(ctx):
			return nil, false
		}
	}
}

func ctxDone(ctx context.Context) <-chan struct{} {
	if ctx == nil {
		return nil
	}
	return ctx.Done()
}

// ReadStream returns a channel that receives every chunk as it becomes
// available on the given channel, closing when ctx is cancelled or the
// buffer is closed and no full chunk remains (spec §3
// AudioBuffer.read_stream).
func (r *RingBuffer) ReadStream(ctx context.Context, channel Channel) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			chunk, ok := r.ReadBlocking(ctx, r.chunkSize, channel, 50*time.Millisecond)
			if !ok {
				r.mu.Lock()
				closed := r.closed
				r.mu.Unlock()
				if closed {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Status returns a snapshot of fill levels, per-channel latency, and
// cumulative metrics (spec §3 BufferStatus).
func (r *RingBuffer) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Levels:         make(map[Channel]float64, len(r.buffers)),
		LatenciesMS:    make(map[Channel]float64, len(r.buffers)),
		ActiveChannels: make(map[Channel]bool, len(r.buffers)),
		Metrics:        r.metrics,
	}
	for key, cb := range r.buffers {
		s.Levels[key] = float64(cb.size) / float64(cb.capacity) * 100
		samples := cb.size / BytesPerSample
		s.LatenciesMS[key] = float64(samples) / float64(r.config.SampleRate) * 1000
		if cb.size > 0 {
			s.ActiveChannels[key] = true
		}
	}
	return s
}

// Clear empties one channel, or every channel when channel is "".
func (r *RingBuffer) Clear(channel Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if channel != "" {
		if cb, ok := r.buffers[channel]; ok {
			cb.ring.Reset()
			cb.size = 0
		}
		return
	}
	for _, cb := range r.buffers {
		cb.ring.Reset()
		cb.size = 0
	}
}

// Close marks the buffer closed, unblocking any pending ReadBlocking/
// ReadStream callers.
func (r *RingBuffer) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *RingBuffer) publish(status string, n int) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.New(bus.AudioChunk, map[string]any{
		"status":          status,
		"bytes_processed": n,
	}))
}
