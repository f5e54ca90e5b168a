package audio

import "testing"

func TestSampleRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}

	data := EncodeSamples(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(data))
	}

	decoded := DecodeSamples(data)
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestDecodeSamplesLittleEndian(t *testing.T) {
	// 0x0201 little-endian
	data := []byte{0x01, 0x02}

	samples := DecodeSamples(data)
	if len(samples) != 1 {
		t.Fatalf("Expected 1 sample, got %d", len(samples))
	}

	if samples[0] != 0x0201 {
		t.Errorf("Expected sample 0x0201, got 0x%04x", samples[0])
	}
}

func TestDecodeSamplesOddLength(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}

	samples := DecodeSamples(data)
	if len(samples) != 1 {
		t.Errorf("Expected trailing odd byte to be ignored, got %d samples", len(samples))
	}
}

func TestClampSample(t *testing.T) {
	cases := []struct {
		name     string
		input    float64
		expected int16
	}{
		{"zero", 0, 0},
		{"in range", 1000.0, 1000},
		{"rounds up", 0.5, 1},
		{"rounds down", 0.4, 0},
		{"rounds negative", -0.5, -1},
		{"clamps high", 40000.0, 32767},
		{"clamps low", -40000.0, -32768},
		{"max boundary", 32767.0, 32767},
		{"min boundary", -32768.0, -32768},
		{"just over max", 32767.4, 32767},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampSample(tc.input); got != tc.expected {
				t.Errorf("ClampSample(%f): expected %d, got %d", tc.input, tc.expected, got)
			}
		})
	}
}
