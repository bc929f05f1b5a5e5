package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{SampleRate: 16000, Channels: 1, Format: FormatPCM16}
}

func TestRingBuffer_WriteRead_RoundTrips(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(1024), WithChunkSize(64))

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, rb.Write(data, ChannelMain))

	got, ok := rb.Read(64, ChannelMain)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestRingBuffer_Write_RejectsMisalignedData(t *testing.T) {
	rb := NewRingBuffer(testConfig())
	err := rb.Write([]byte{0x01, 0x02, 0x03}, ChannelMain)
	assert.ErrorIs(t, err, ErrSampleMisalignment)
}

func TestRingBuffer_Read_UnderrunWhenInsufficientData(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(1024), WithChunkSize(64))
	require.NoError(t, rb.Write(make([]byte, 10), ChannelMain))

	_, ok := rb.Read(64, ChannelMain)
	assert.False(t, ok)
	assert.EqualValues(t, 1, rb.Status().Metrics.UnderrunCount)
}

func TestRingBuffer_Write_OverflowEvictsOldestAndCountsOnce(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(128), WithChunkSize(32))

	require.NoError(t, rb.Write(make([]byte, 100), ChannelMain))
	require.NoError(t, rb.Write(make([]byte, 100), ChannelMain))

	status := rb.Status()
	assert.EqualValues(t, 1, status.Metrics.OverflowCount)
	assert.LessOrEqual(t, status.Levels[ChannelMain], 100.0)
}

func TestRingBuffer_Status_ReportsActiveChannelsAndLatency(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(1024), WithChunkSize(64))
	require.NoError(t, rb.Write(make([]byte, 32), ChannelMic))

	status := rb.Status()
	assert.True(t, status.ActiveChannels[ChannelMic])
	assert.False(t, status.ActiveChannels[ChannelMain])
	assert.Greater(t, status.LatenciesMS[ChannelMic], 0.0)
}

func TestRingBuffer_ReadBlocking_WaitsForData(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(1024), WithChunkSize(32))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = rb.Write(make([]byte, 32), ChannelMain)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := rb.ReadBlocking(ctx, 32, ChannelMain, 200*time.Millisecond)
	require.True(t, ok)
	assert.Len(t, got, 32)
}

func TestRingBuffer_ReadStream_DeliversChunksUntilCancelled(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(1024), WithChunkSize(16))
	ctx, cancel := context.WithCancel(context.Background())
	stream := rb.ReadStream(ctx, ChannelMain)

	require.NoError(t, rb.Write(make([]byte, 16), ChannelMain))
	select {
	case chunk := <-stream:
		assert.Len(t, chunk, 16)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for streamed chunk")
	}

	cancel()
	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestRingBuffer_Clear_ResetsChannel(t *testing.T) {
	rb := NewRingBuffer(testConfig(), WithMaxSize(1024), WithChunkSize(32))
	require.NoError(t, rb.Write(make([]byte, 32), ChannelMain))

	rb.Clear(ChannelMain)
	_, ok := rb.Read(32, ChannelMain)
	assert.False(t, ok)
}
