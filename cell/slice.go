// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cell

import "encoding/binary"

// Slice is a non-owning read cursor over one cell: a bit range and a
// reference range. Every read operation advances one or both ranges; a
// Slice never mutates the underlying cell.
type Slice struct {
	cell      *Cell
	bitsStart uint16
	bitsEnd   uint16
	refsStart uint8
	refsEnd   uint8
}

// Cell returns the underlying cell this slice reads from.
func (s *Slice) Cell() *Cell {
	return s.cell
}

// RemainingBits returns the number of unread data bits.
func (s *Slice) RemainingBits() uint16 {
	return s.bitsEnd - s.bitsStart
}

// RemainingRefs returns the number of unread references.
func (s *Slice) RemainingRefs() uint8 {
	return s.refsEnd - s.refsStart
}

// HasRemaining reports whether at least bits data bits and refs references
// remain.
func (s *Slice) HasRemaining(bits uint16, refs uint8) bool {
	return s.RemainingBits() >= bits && s.RemainingRefs() >= refs
}

// TryAdvance advances the cursor by bits data bits and refs references
// without reading them. Returns false (and does not advance) if not enough
// remains.
func (s *Slice) TryAdvance(bits uint16, refs uint8) bool {
	if !s.HasRemaining(bits, refs) {
		return false
	}
	s.bitsStart += bits
	s.refsStart += refs
	return true
}

// bitAt returns the value of the n'th data bit of the underlying cell
// (0-indexed from the start of the cell's data, not the slice).
func (c *Cell) bitAt(n uint16) bool {
	byteIdx := n / 8
	bitIdx := 7 - (n % 8)
	return (c.data[byteIdx]>>bitIdx)&1 != 0
}

// LoadBit reads and consumes one data bit.
func (s *Slice) LoadBit() (bool, error) {
	if !s.HasRemaining(1, 0) {
		return false, ErrOf(ErrCellUnderflow)
	}
	v := s.cell.bitAt(s.bitsStart)
	s.bitsStart++
	return v, nil
}

// PeekBit reads one data bit without consuming it.
func (s *Slice) PeekBit() (bool, error) {
	if !s.HasRemaining(1, 0) {
		return false, ErrOf(ErrCellUnderflow)
	}
	return s.cell.bitAt(s.bitsStart), nil
}

// LoadSmallUint reads and consumes an n-bit (1..=8) big-endian unsigned
// integer.
func (s *Slice) LoadSmallUint(n uint8) (uint8, error) {
	if n < 1 || n > 8 {
		return 0, Errf(ErrCellUnderflow, "small uint width %d, want 1..=8", n)
	}
	if !s.HasRemaining(uint16(n), 0) {
		return 0, ErrOf(ErrCellUnderflow)
	}
	var v uint8
	for i := uint8(0); i < n; i++ {
		v <<= 1
		if s.cell.bitAt(s.bitsStart) {
			v |= 1
		}
		s.bitsStart++
	}
	return v, nil
}

// LoadUint8 reads and consumes an 8-bit unsigned integer.
func (s *Slice) LoadUint8() (uint8, error) {
	v, err := s.loadUintN(8, func(b []byte) uint64 { return uint64(b[0]) })
	return uint8(v), err
}

// LoadUint16 reads and consumes a 16-bit big-endian unsigned integer.
func (s *Slice) LoadUint16() (uint16, error) {
	v, err := s.loadUintN(16, func(b []byte) uint64 { return uint64(binary.BigEndian.Uint16(b)) })
	return uint16(v), err
}

// LoadUint32 reads and consumes a 32-bit big-endian unsigned integer.
func (s *Slice) LoadUint32() (uint32, error) {
	v, err := s.loadUintN(32, func(b []byte) uint64 { return uint64(binary.BigEndian.Uint32(b)) })
	return uint32(v), err
}

// LoadUint64 reads and consumes a 64-bit big-endian unsigned integer.
func (s *Slice) LoadUint64() (uint64, error) {
	return s.loadUintN(64, binary.BigEndian.Uint64)
}

func (s *Slice) loadUintN(n uint16, decode func([]byte) uint64) (uint64, error) {
	raw, err := s.LoadBits(n)
	if err != nil {
		return 0, err
	}
	return decode(raw), nil
}

// LoadUint128 reads and consumes a 128-bit big-endian unsigned integer,
// returned as 16 raw bytes.
func (s *Slice) LoadUint128() ([]byte, error) {
	return s.LoadBits(128)
}

// LoadUint256 reads and consumes a 256-bit big-endian unsigned integer,
// returned as 32 raw bytes.
func (s *Slice) LoadUint256() ([]byte, error) {
	return s.LoadBits(256)
}

// LoadBits reads and consumes n data bits, returned left-aligned in
// ceil(n/8) bytes (the final byte's low (8 - n%8) bits are zero when n is
// not a multiple of 8).
func (s *Slice) LoadBits(n uint16) ([]byte, error) {
	if !s.HasRemaining(n, 0) {
		return nil, ErrOf(ErrCellUnderflow)
	}
	out := make([]byte, (n+7)/8)
	for i := uint16(0); i < n; i++ {
		if s.cell.bitAt(s.bitsStart + i) {
			out[i/8] |= 1 << (7 - (i % 8))
		}
	}
	s.bitsStart += n
	return out, nil
}

// LoadReference returns (without cloning any owned handle) the next
// reference and advances past it.
func (s *Slice) LoadReference() (*Cell, error) {
	if !s.HasRemaining(0, 1) {
		return nil, ErrOf(ErrCellUnderflow)
	}
	c := s.cell.refs[s.refsStart]
	s.refsStart++
	return c, nil
}

// LoadReferenceCloned is an alias for LoadReference: since Cell references
// are immutable shared pointers in this implementation, there is no
// separate owned-vs-borrowed distinction to make.
func (s *Slice) LoadReferenceCloned() (*Cell, error) {
	return s.LoadReference()
}

// PeekReference returns the next reference without consuming it.
func (s *Slice) PeekReference() (*Cell, error) {
	if !s.HasRemaining(0, 1) {
		return nil, ErrOf(ErrCellUnderflow)
	}
	return s.cell.refs[s.refsStart], nil
}

// IsDataEmpty reports whether no data bits remain.
func (s *Slice) IsDataEmpty() bool {
	return s.RemainingBits() == 0
}

// IsRefsEmpty reports whether no references remain.
func (s *Slice) IsRefsEmpty() bool {
	return s.RemainingRefs() == 0
}
