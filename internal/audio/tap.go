package audio

import (
	"math"
	"math/cmplx"
	"sync"
)

const tapWindowSize = 512 // power of two, ~32ms at 16kHz

// SpectrumTap keeps a ring of the most recent capture samples and derives
// magnitude bins on demand for visualization. It is fed from the capture
// read loop and read from the render loop; the ring write is the only work
// done on the capture side.
type SpectrumTap struct {
	mu     sync.Mutex
	ring   []float64
	pos    int
	filled bool
}

func NewSpectrumTap() *SpectrumTap {
	return &SpectrumTap{ring: make([]float64, tapWindowSize)}
}

// Push appends capture samples to the ring.
func (t *SpectrumTap) Push(frame []float32) {
	t.mu.Lock()
	for _, s := range frame {
		t.ring[t.pos] = float64(s)
		t.pos++
		if t.pos == len(t.ring) {
			t.pos = 0
			t.filled = true
		}
	}
	t.mu.Unlock()
}

// FrequencyData returns magnitude bins for the most recent window, or nil
// when no audio has flowed yet.
func (t *SpectrumTap) FrequencyData() []float64 {
	t.mu.Lock()
	if !t.filled && t.pos == 0 {
		t.mu.Unlock()
		return nil
	}
	window := make([]complex128, tapWindowSize)
	for i := 0; i < tapWindowSize; i++ {
		sample := t.ring[(t.pos+i)%tapWindowSize]
		// Hann window to reduce spectral leakage.
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(tapWindowSize-1)))
		window[i] = complex(sample*w, 0)
	}
	t.mu.Unlock()

	spectrum := fft(window)
	bins := make([]float64, tapWindowSize/2)
	for i := range bins {
		bins[i] = cmplx.Abs(spectrum[i]) / float64(tapWindowSize)
	}
	return bins
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform. len(x) must
// be a power of two.
func fft(x []complex128) []complex128 {
	n := len(x)
	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		angle := -2 * math.Pi / float64(size)
		wStep := cmplx.Rect(1, angle)
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < size/2; k++ {
				u := x[start+k]
				v := x[start+k+size/2] * w
				x[start+k] = u + v
				x[start+k+size/2] = u - v
				w *= wStep
			}
		}
	}
	return x
}
