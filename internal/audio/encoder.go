package audio

import (
	"math"

	"medscribe/internal/domain"
)

const defaultBlockSize = 4096

// SampleEncoder converts a continuous stream of float samples in [-1, 1]
// into fixed-length signed 16-bit blocks with no sample loss or duplication
// across call boundaries. It runs inside the capture read loop and must stay
// allocation-light: one block allocation per emission, nothing else.
//
// Partial buffers are never flushed early, so every emitted block has a
// uniform length at the cost of up to one block of tail latency.
type SampleEncoder struct {
	blockSize int
	buf       []int16
	emit      func(domain.AudioBlock)
}

// NewSampleEncoder creates an encoder emitting blocks of blockSize samples.
func NewSampleEncoder(blockSize int, emit func(domain.AudioBlock)) *SampleEncoder {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &SampleEncoder{
		blockSize: blockSize,
		buf:       make([]int16, 0, blockSize),
		emit:      emit,
	}
}

// Push appends a frame of float samples, emitting one block each time the
// carry-over buffer fills. Frames may be any length.
func (e *SampleEncoder) Push(frame []float32) {
	for _, s := range frame {
		e.buf = append(e.buf, encodeSample(s))
		if len(e.buf) == e.blockSize {
			block := make(domain.AudioBlock, e.blockSize)
			copy(block, e.buf)
			e.buf = e.buf[:0]
			if e.emit != nil {
				e.emit(block)
			}
		}
	}
}

// Pending reports how many samples are buffered awaiting a full block.
func (e *SampleEncoder) Pending() int {
	return len(e.buf)
}

// Reset discards any partial buffer. Called on stop; the trailing partial
// block is accepted, bounded data loss.
func (e *SampleEncoder) Reset() {
	e.buf = e.buf[:0]
}

// encodeSample clamps s to [-1, 1] and scales asymmetrically so the full
// signed 16-bit range is used without overflow. NaN and Inf clamp to 0.
func encodeSample(s float32) int16 {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f < -1 {
		f = -1
	} else if f > 1 {
		f = 1
	}
	if f < 0 {
		return int16(f * 32768)
	}
	return int16(f * 32767)
}
