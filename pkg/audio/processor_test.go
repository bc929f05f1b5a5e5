package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func constantSamples(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestProcessor_ReduceNoise_GatesBelowCalibratedFloor(t *testing.T) {
	cfg := DefaultProcessorConfig(16000)
	cfg.NoiseThreshold = 1.0 // gate at the calibrated floor itself
	p := NewProcessor(cfg)
	p.CalibrateNoise(constantSamples(100, 50))

	quiet := constantSamples(10, 10)
	gated := p.ReduceNoise(quiet)
	for _, s := range gated {
		assert.Zero(t, s)
	}
}

func TestProcessor_ReduceNoise_NoOpBeforeCalibration(t *testing.T) {
	p := NewProcessor(DefaultProcessorConfig(16000))
	in := constantSamples(10, 500)
	out := p.ReduceNoise(in)
	assert.Equal(t, in, out)
}

func TestProcessor_Normalize_TracksDecayingPeak(t *testing.T) {
	p := NewProcessor(DefaultProcessorConfig(16000))

	loud := constantSamples(10, 16000)
	_, peak1 := p.Normalize(loud, 0.95)
	assert.InDelta(t, 16000.0/32768.0, peak1, 1e-6)

	quiet := constantSamples(10, 100)
	_, peak2 := p.Normalize(quiet, 0.95)
	assert.Less(t, peak2, peak1)
	assert.Greater(t, peak2, 0.0)
}

func TestProcessor_ApplyGain_ClipsToRange(t *testing.T) {
	cfg := DefaultProcessorConfig(16000)
	cfg.Gain = 10.0
	p := NewProcessor(cfg)

	out := p.ApplyGain(constantSamples(5, 20000))
	for _, s := range out {
		assert.Equal(t, int16(32767), s)
	}
}

func TestProcessor_DetectSilence_RequiresSustainedDuration(t *testing.T) {
	cfg := DefaultProcessorConfig(16000)
	cfg.SilenceMinDuration = 100 * time.Millisecond
	p := NewProcessor(cfg)

	silentChunk := constantSamples(800, 0) // 50ms at 16kHz
	assert.False(t, p.DetectSilence(silentChunk))
	assert.True(t, p.DetectSilence(silentChunk))

	loudChunk := constantSamples(800, 20000)
	assert.False(t, p.DetectSilence(loudChunk))
}

func TestProcessor_ProcessChunk_RunsStagesInOrder(t *testing.T) {
	p := NewProcessor(DefaultProcessorConfig(16000))
	p.CalibrateNoise(constantSamples(100, 50))

	_, info := p.ProcessChunk(constantSamples(100, 16000), DefaultProcessOptions())
	assert.Equal(t, 1.0, info.AppliedGain)
	assert.GreaterOrEqual(t, info.PeakAmplitude, 0.0)
}
