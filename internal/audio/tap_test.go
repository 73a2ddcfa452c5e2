package audio

import (
	"math"
	"testing"
)

func TestSpectrumTapEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	tap := NewSpectrumTap()
	if bins := tap.FrequencyData(); bins != nil {
		t.Fatalf("expected nil bins before any audio, got %d", len(bins))
	}
}

func TestSpectrumTapTonePeaksInExpectedBin(t *testing.T) {
	t.Parallel()

	const sampleRate = 16000.0
	const freq = 1000.0

	tap := NewSpectrumTap()
	frame := make([]float32, tapWindowSize)
	for i := range frame {
		frame[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	tap.Push(frame)

	bins := tap.FrequencyData()
	if len(bins) != tapWindowSize/2 {
		t.Fatalf("expected %d bins, got %d", tapWindowSize/2, len(bins))
	}

	peak := 0
	for i, v := range bins {
		if v > bins[peak] {
			peak = i
		}
	}
	want := int(freq / sampleRate * tapWindowSize)
	if peak < want-2 || peak > want+2 {
		t.Fatalf("peak bin %d, expected near %d", peak, want)
	}
}

func TestSpectrumTapSilenceIsFlat(t *testing.T) {
	t.Parallel()

	tap := NewSpectrumTap()
	tap.Push(make([]float32, tapWindowSize*2))

	for i, v := range tap.FrequencyData() {
		if v > 1e-9 {
			t.Fatalf("bin %d not silent: %v", i, v)
		}
	}
}
