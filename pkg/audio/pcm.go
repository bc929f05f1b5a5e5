package audio

import "encoding/binary"

// BytesToSamples decodes little-endian PCM16 bytes into signed samples.
// data must already satisfy ValidateAlignment for a mono frame size (2).
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes signed samples back to little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
