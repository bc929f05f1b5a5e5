package audio

import (
	"github.com/lokutor-ai/assist-core/pkg/bus"
)

// TargetSampleRate is the canonical rate every stream is resampled to
// before transcription (spec §3, §6.1).
const TargetSampleRate = 16000

// Mixer resamples the microphone and desktop-loopback legs to
// TargetSampleRate, mixes them into a mono monitoring stream, and
// interleaves them into the dual-channel wire format the transcription
// transport expects (spec §4.3 C3 mixing half, grounded on the teacher's
// two-leg capture in cmd/agent/main.go and original_source's mixer.py).
type Mixer struct {
	chunkSize int
	bus       *bus.Bus
}

// NewMixer constructs a Mixer. chunkSize is the number of silent samples
// substituted for a leg that is missing (nil).
func NewMixer(chunkSize int, eventBus *bus.Bus) *Mixer {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	return &Mixer{chunkSize: chunkSize, bus: eventBus}
}

// Resample converts samples captured at originalRate to TargetSampleRate
// using linear interpolation. It is a no-op when the rates already match.
func Resample(samples []int16, originalRate int) []int16 {
	if originalRate <= 0 || originalRate == TargetSampleRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(TargetSampleRate) / float64(originalRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen <= 0 {
		return nil
	}
	out := make([]int16, outLen)
	for i := range out {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := srcPos - float64(i0)
		a, b := float64(samples[i0]), float64(samples[i0+1])
		v := a + (b-a)*frac
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// Channels holds the three sample streams PrepareForTranscription produces.
type Channels struct {
	Combined []int16
	Ch0      []int16 // microphone leg, resampled
	Ch1      []int16 // desktop leg, resampled
}

func padTo(samples []int16, length int) []int16 {
	if len(samples) >= length {
		return samples
	}
	out := make([]int16, length)
	copy(out, samples)
	return out
}

// PrepareForTranscription resamples both legs to TargetSampleRate, pads
// the shorter to match the longer, and mixes them down for monitoring.
// Either leg may be nil, in which case it is treated as chunkSize of
// silence (spec §4.3, original_source mixer.py prepare_for_transcription).
func (m *Mixer) PrepareForTranscription(mic, desktop []int16, micRate, desktopRate int) Channels {
	if mic == nil && desktop == nil {
		return Channels{Combined: []int16{}, Ch0: []int16{}, Ch1: []int16{}}
	}

	mic = resampleOrSilence(mic, micRate, m.chunkSize)
	desktop = resampleOrSilence(desktop, desktopRate, m.chunkSize)

	target := len(mic)
	if len(desktop) > target {
		target = len(desktop)
	}
	mic = padTo(mic, target)
	desktop = padTo(desktop, target)

	combined := make([]int16, target)
	for i := range combined {
		mixed := (float64(mic[i]) + float64(desktop[i])) / 2
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		combined[i] = int16(mixed)
	}

	if m.bus != nil {
		m.bus.Publish(bus.New(bus.AudioChunk, map[string]any{
			"status": "ready_for_transcription",
		}))
	}

	return Channels{Combined: combined, Ch0: mic, Ch1: desktop}
}

func resampleOrSilence(samples []int16, rate, chunkSize int) []int16 {
	if samples == nil {
		return make([]int16, chunkSize)
	}
	return Resample(samples, rate)
}

// Interleave builds the LRLR... dual-channel byte stream the streaming
// transcription transport expects, padding the shorter channel with
// silence (spec §4.3, original_source mixer.py create_transcription_chunk).
func Interleave(ch0, ch1 []int16) []byte {
	length := len(ch0)
	if len(ch1) > length {
		length = len(ch1)
	}
	ch0 = padTo(ch0, length)
	ch1 = padTo(ch1, length)

	interleaved := make([]int16, length*2)
	for i := 0; i < length; i++ {
		interleaved[i*2] = ch0[i]
		interleaved[i*2+1] = ch1[i]
	}
	return SamplesToBytes(interleaved)
}

// ChunkDurationMillis returns the duration represented by a dual-channel
// PCM16 byte chunk (4 bytes per stereo sample frame).
func ChunkDurationMillis(chunk []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	numSamples := len(chunk) / 4
	return (float64(numSamples) / float64(sampleRate)) * 1000
}
