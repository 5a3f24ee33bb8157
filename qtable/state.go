package qtable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"qmaze/prng"
)

// StateSize is the encoded length of a State: the seed plus every table entry,
// four bytes each.
const StateSize = 4 + Size*4

var ErrSnapshotSize = errors.New("encoded state has the wrong length")

// State is everything a training call carries between invocations: the rng seed
// and the table.
type State struct {
	Seed  uint32
	Table Table
}

// NewState returns the state of a never-trained engine.
func NewState() State {
	return State{Seed: prng.InitialSeed}
}

// MarshalBinary encodes the seed followed by every table entry in index order,
// big-endian, two's complement for the values.
func (s State) MarshalBinary() ([]byte, error) {
	buf := make([]byte, StateSize)
	binary.BigEndian.PutUint32(buf, s.Seed)
	for i, v := range s.Table {
		binary.BigEndian.PutUint32(buf[4+i*4:], uint32(v))
	}
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (s *State) UnmarshalBinary(data []byte) error {
	if len(data) != StateSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSnapshotSize, len(data), StateSize)
	}
	s.Seed = binary.BigEndian.Uint32(data)
	for i := range s.Table {
		s.Table[i] = int32(binary.BigEndian.Uint32(data[4+i*4:]))
	}
	return nil
}
