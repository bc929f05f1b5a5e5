package audio

import (
	"math"
	"time"
)

// ProcessorConfig tunes a Processor's noise gate, gain and silence
// detector (spec §4.3 C3, grounded on the teacher's processor tunables).
type ProcessorConfig struct {
	NoiseThreshold      float64 // fraction of the calibrated noise floor, default 0.01
	Gain                float64 // linear gain multiplier, default 1.0
	CalibrationDuration time.Duration
	SampleRate          int
	SilenceThreshold    float64       // RMS amplitude below which audio counts as silent
	SilenceMinDuration  time.Duration // sustained silence required before DetectSilence reports true
}

// DefaultProcessorConfig returns the processor's out-of-the-box tuning.
func DefaultProcessorConfig(sampleRate int) ProcessorConfig {
	return ProcessorConfig{
		NoiseThreshold:      0.01,
		Gain:                1.0,
		CalibrationDuration: time.Second,
		SampleRate:          sampleRate,
		SilenceThreshold:    0.01,
		SilenceMinDuration:  500 * time.Millisecond,
	}
}

// ChunkInfo reports what Processor.ProcessChunk did to one chunk.
type ChunkInfo struct {
	PeakAmplitude float64
	IsSilence     bool
	AppliedGain   float64
}

// Processor applies a noise gate, decaying-peak normalization and gain
// control to 16-bit PCM samples, and tracks sustained silence across
// chunks (spec §4.3 C3: resample/normalize/noise-gate/silence-detect).
type Processor struct {
	cfg ProcessorConfig

	noiseProfile float64
	isCalibrated bool
	runningMax   float64
	silenceSecs  float64
}

// NewProcessor constructs a Processor from cfg.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{cfg: cfg}
}

func toFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

func toInt16Clipped(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// CalibrateNoise sets the noise floor from a representative silent sample
// (mean absolute amplitude, spec §4.3 calibration window).
func (p *Processor) CalibrateNoise(samples []int16) {
	f := toFloat(samples)
	var sum float64
	for _, v := range f {
		sum += math.Abs(v)
	}
	if len(f) > 0 {
		p.noiseProfile = sum / float64(len(f))
	}
	p.isCalibrated = true
}

// IsCalibrated reports whether CalibrateNoise has run.
func (p *Processor) IsCalibrated() bool { return p.isCalibrated }

// ReduceNoise zeroes samples whose magnitude falls below the calibrated
// noise floor times NoiseThreshold. A no-op until calibrated.
func (p *Processor) ReduceNoise(samples []int16) []int16 {
	if !p.isCalibrated {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	f := toFloat(samples)
	gate := p.noiseProfile * p.cfg.NoiseThreshold
	for i, v := range f {
		if math.Abs(v) <= gate {
			f[i] = 0
		}
	}
	return toInt16Clipped(f)
}

// Normalize scales samples toward targetPeak using a decaying running
// maximum (decay 0.95 per call, spec §4.3 normalize/decaying-peak). It
// returns the processed samples and the running peak used.
func (p *Processor) Normalize(samples []int16, targetPeak float64) ([]int16, float64) {
	f := toFloat(samples)

	currentPeak := 0.0
	for _, v := range f {
		if a := math.Abs(v); a > currentPeak {
			currentPeak = a
		}
	}

	if currentPeak > p.runningMax*0.95 {
		p.runningMax = currentPeak
	} else {
		p.runningMax *= 0.95
	}

	if p.runningMax > 0 {
		factor := targetPeak / p.runningMax
		for i := range f {
			f[i] *= factor
		}
	}
	return toInt16Clipped(f), p.runningMax
}

// ApplyGain multiplies samples by cfg.Gain, clipping to the int16 range.
func (p *Processor) ApplyGain(samples []int16) []int16 {
	f := toFloat(samples)
	for i := range f {
		f[i] *= p.cfg.Gain
	}
	return toInt16Clipped(f)
}

// DetectSilence computes the chunk's RMS amplitude and accumulates
// sustained-silence duration across calls, returning true once that
// duration reaches SilenceMinDuration (spec §4.3 VAD-style silence gate).
// A non-silent chunk resets the accumulator.
func (p *Processor) DetectSilence(samples []int16) bool {
	f := toFloat(samples)
	var sumSq float64
	for _, v := range f {
		sumSq += v * v
	}
	rms := 0.0
	if len(f) > 0 {
		rms = math.Sqrt(sumSq / float64(len(f)))
	}

	rate := p.cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	if rms < p.cfg.SilenceThreshold {
		p.silenceSecs += float64(len(samples)) / float64(rate)
	} else {
		p.silenceSecs = 0
	}

	return p.silenceSecs >= p.cfg.SilenceMinDuration.Seconds()
}

// ProcessOptions selects which stages ProcessChunk runs.
type ProcessOptions struct {
	NoiseReduction bool
	Normalization  bool
	GainControl    bool
}

// DefaultProcessOptions runs every stage, matching the teacher's defaults.
func DefaultProcessOptions() ProcessOptions {
	return ProcessOptions{NoiseReduction: true, Normalization: true, GainControl: true}
}

// ProcessChunk runs the selected stages over samples in the fixed order
// noise-reduce, normalize, gain, then evaluates silence on the result
// (spec §4.3 pipeline order).
func (p *Processor) ProcessChunk(samples []int16, opts ProcessOptions) ([]int16, ChunkInfo) {
	processed := make([]int16, len(samples))
	copy(processed, samples)

	info := ChunkInfo{AppliedGain: p.cfg.Gain}

	if opts.NoiseReduction && p.isCalibrated {
		processed = p.ReduceNoise(processed)
	}
	if opts.Normalization {
		var peak float64
		processed, peak = p.Normalize(processed, 0.95)
		info.PeakAmplitude = peak
	}
	if opts.GainControl {
		processed = p.ApplyGain(processed)
	}

	info.IsSilence = p.DetectSilence(processed)
	return processed, info
}
