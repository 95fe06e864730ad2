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

// levelData holds the per-level (hash, depth) pair a finalized cell
// carries. Index i corresponds to LevelMask.HashIndex(i) for i in
// 0..=LevelMask.Level().
type levelData struct {
	hash  Hash
	depth uint16
}

// Cell is an immutable DAG node: up to 1023 data bits, up to 4 references to
// other cells, and a precomputed hash/depth for every level its mask
// implies. Cells are never mutated after Builder.Build(Ext) returns one;
// shared ownership (this type is a plain value referenced by pointer, with
// Go's GC standing in for manual reference counting) makes the DAG safe to
// share across an arbitrary read fan-out.
type Cell struct {
	descriptor Descriptor
	cellType   CellType
	bitLen     uint16
	data       []byte // padded to ByteLen(); completion bit applied if needed
	refs       [MaxRefs]*Cell
	refCount   uint8
	levels     [MaxLevelMask + 2]levelData // indexed by HashIndex(level); level() can be up to 3
}

// empty is the canonical empty cell (0 bits, 0 refs), lazily built and
// memoized the first time EmptyCell is called. This is the only global
// state in the package, and it is write-once/idempotent.
var empty *Cell

// EmptyCell returns the canonical cell with zero data bits and zero
// references, building and memoizing it on first use.
func EmptyCell() *Cell {
	if empty != nil {
		return empty
	}
	b := NewBuilder()
	c, err := b.Build()
	if err != nil {
		// Building the empty cell can never fail: 0 bits, 0 refs is
		// trivially within every capacity limit.
		panic("cell: failed to build empty cell: " + err.Error())
	}
	empty = c
	return empty
}

// Descriptor returns the cell's 2-byte header.
func (c *Cell) Descriptor() Descriptor {
	return c.descriptor
}

// CellType returns the cell's exotic type (TypeOrdinary for a plain cell).
func (c *Cell) CellType() CellType {
	return c.cellType
}

// ReferenceCount returns the number of child references the cell stores.
func (c *Cell) ReferenceCount() int {
	return int(c.refCount)
}

// BitLen returns the number of meaningful data bits.
func (c *Cell) BitLen() uint16 {
	return c.bitLen
}

// Data returns the cell's raw padded data bytes (ceil(BitLen/8) of them,
// with a completion bit and zero padding in the final byte if BitLen is not
// a multiple of 8). Callers must not modify the returned slice.
func (c *Cell) Data() []byte {
	return c.data
}

// Reference returns the i'th child cell, or ErrCellUnderflow if i is out of
// range.
func (c *Cell) Reference(i int) (*Cell, error) {
	if i < 0 || i >= int(c.refCount) {
		return nil, Errf(ErrCellUnderflow, "reference %d, have %d", i, c.refCount)
	}
	return c.refs[i], nil
}

// Hash returns the cell's hash at the given level (0..=LevelMask.Level()).
// Levels beyond the mask's own level collapse to the representation level,
// matching the convention that over-deep reads just see the fully
// virtualized hash.
func (c *Cell) Hash(level uint8) Hash {
	idx := c.hashIndex(level)
	return c.levels[idx].hash
}

// Depth returns the cell's depth at the given level, with the same
// level-clamping behavior as Hash.
func (c *Cell) Depth(level uint8) uint16 {
	idx := c.hashIndex(level)
	return c.levels[idx].depth
}

func (c *Cell) hashIndex(level uint8) uint8 {
	maxLevel := c.descriptor.LevelMask.Level()
	if level > maxLevel {
		level = maxLevel
	}
	if c.cellType == TypePrunedBranch {
		// Pruned branches store one (hash, depth) pair per level in
		// 0..=maxLevel, indexed directly by level rather than through the
		// collapsing popcount index ordinary cells use: every level the
		// branch's mask spans is a distinct copy of the source subtree's
		// hash at that level, since the bit marking the branch's own
		// embedding depth is always significant even when the source
		// itself carried no merkle nesting.
		return level
	}
	return c.descriptor.LevelMask.HashIndex(level)
}

// ReprHash returns the representation hash: the cell's hash at its own
// mask's level, the DAG-wide identity of the subtree rooted here.
func (c *Cell) ReprHash() Hash {
	return c.Hash(c.descriptor.LevelMask.Level())
}

// ReprDepth returns the representation depth, paired with ReprHash.
func (c *Cell) ReprDepth() uint16 {
	return c.Depth(c.descriptor.LevelMask.Level())
}

// AsSlice returns a full-range read cursor over the cell, failing with
// ErrInvalidCell if the cell is exotic (exotic cells carry structured data
// that callers should read via AsSliceAllowExotic or a typed loader
// instead).
func (c *Cell) AsSlice() (*Slice, error) {
	if c.descriptor.Exotic {
		return nil, ErrOf(ErrInvalidCell)
	}
	return c.AsSliceAllowExotic(), nil
}

// AsSliceAllowExotic returns a full-range read cursor over the cell
// regardless of whether it is exotic.
func (c *Cell) AsSliceAllowExotic() *Slice {
	return &Slice{
		cell:     c,
		bitsEnd:  c.bitLen,
		refsEnd:  c.refCount,
	}
}

// Equal reports structural equality: true iff the two cells' representation
// hashes match, which is equivalent to deep structural equality of the
// whole subtree.
func (c *Cell) Equal(other *Cell) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.ReprHash() == other.ReprHash()
}

// childEffectiveLevel returns the level at which a child's hash/depth
// should be read when computing this cell's own hash/depth at level i:
// non-merkle cells read the child at level i; merkle cells read one level
// up (i+1), since a Merkle proof/update's representation hash depends on
// its child's hash one level up (the "virtualized" level).
func childEffectiveLevel(parentIsMerkle bool, i uint8) uint8 {
	if parentIsMerkle {
		return i + 1
	}
	return i
}

// canonicalImage builds the canonical byte image that is SHA-256ed to
// produce this cell's hash at level i, given the already finalized
// children: descriptor bytes (with the level mask restricted to the bits
// below level i, so a rebuilt replica whose pruned branches stand in for
// original subtrees has the original's hash at level 0), data bytes, then
// each child's depth, then each child's hash, all read at the child's
// effective level.
func canonicalImage(descriptor Descriptor, data []byte, refs []*Cell, parentIsMerkle bool, i uint8) []byte {
	image := make([]byte, 0, 2+len(data)+len(refs)*(2+HashSize))
	levelDescriptor := descriptor
	levelDescriptor.LevelMask = descriptor.LevelMask & LevelMask((1<<i)-1)
	image = append(image, levelDescriptor.D1(), levelDescriptor.D2())
	image = append(image, data...)
	for _, ref := range refs {
		childLevel := childEffectiveLevel(parentIsMerkle, i)
		var depthBuf [2]byte
		binary.BigEndian.PutUint16(depthBuf[:], ref.Depth(childLevel))
		image = append(image, depthBuf[:]...)
	}
	for _, ref := range refs {
		childLevel := childEffectiveLevel(parentIsMerkle, i)
		h := ref.Hash(childLevel)
		image = append(image, h[:]...)
	}
	return image
}
