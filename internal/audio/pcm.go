package audio

import "math"

// DecodeSamples converts little-endian PCM-16 bytes to int16 samples.
// A trailing odd byte is ignored.
func DecodeSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// EncodeSamples converts int16 samples to little-endian PCM-16 bytes
func EncodeSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// ClampSample rounds a mixed sample to the nearest integer and saturates it
// to the int16 range
func ClampSample(v float64) int16 {
	r := math.Round(v)
	if r > 32767 {
		return 32767
	}
	if r < -32768 {
		return -32768
	}
	return int16(r)
}
