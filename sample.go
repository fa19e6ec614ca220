package fastpm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Sample is one reading emitted by a producer. Seq starts at 1 and increases by
// one for every successful device sample; consumers use gaps in Seq to count
// readings that were never delivered.
type Sample struct {
	Seq   uint64  `json:"seq"`
	Value float64 `json:"value"`
}

func (s Sample) String() string {
	return fmt.Sprintf("#%d=%g", s.Seq, s.Value)
}

// SampleFrameSize is the number of bytes one Sample occupies on the worker pipe.
const SampleFrameSize = 16

// MarshalBinary encodes the sample as seq then value bits, both little-endian uint64.
func (s Sample) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SampleFrameSize)
	binary.LittleEndian.PutUint64(buf[0:8], s.Seq)
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(s.Value))
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (s *Sample) UnmarshalBinary(data []byte) error {
	if len(data) != SampleFrameSize {
		return fmt.Errorf("sample frame is %d bytes, want %d", len(data), SampleFrameSize)
	}
	s.Seq = binary.LittleEndian.Uint64(data[0:8])
	s.Value = math.Float64frombits(binary.LittleEndian.Uint64(data[8:16]))
	return nil
}

// writeSample writes one frame to w.
func writeSample(w io.Writer, s Sample) error {
	frame, _ := s.MarshalBinary()
	_, err := w.Write(frame)
	return err
}

// readSample reads exactly one frame from r. It returns io.EOF only when r ends
// cleanly between frames.
func readSample(r io.Reader) (Sample, error) {
	var s Sample
	frame := make([]byte, SampleFrameSize)
	if _, err := io.ReadFull(r, frame); err != nil {
		return s, err
	}
	err := s.UnmarshalBinary(frame)
	return s, err
}
