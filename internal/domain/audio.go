package domain

import "encoding/binary"

// AudioBlock is one encoding period of mono PCM audio: a fixed-length
// sequence of signed 16-bit samples. Blocks are created once inside the
// capture path and never mutated afterwards.
type AudioBlock []int16

// PCM serializes the block as little-endian signed 16-bit bytes, the wire
// format the transport expects.
func (b AudioBlock) PCM() []byte {
	out := make([]byte, len(b)*2)
	for i, s := range b {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
