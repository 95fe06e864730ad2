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

// Builder is an append-only accumulator for constructing a new Cell. It
// enforces the 1023-bit / 4-reference capacity limits on every store and
// is otherwise stateless between Build calls: a Builder is single-use and
// built fresh per cell rather than reused.
type Builder struct {
	bitLen     uint16
	data       [MaxBitLen/8 + 1]byte
	refs       [MaxRefs]*Cell
	refCount   uint8
	exotic     bool
	levelMask  LevelMask
	hasMask    bool // true once SetLevelMask has been called explicitly
}

// NewBuilder returns an empty Builder ready to accept stores.
func NewBuilder() *Builder {
	return &Builder{}
}

// HasCapacity reports whether bits more data bits and refs more references
// would still fit.
func (b *Builder) HasCapacity(bits uint16, refs uint8) bool {
	return b.bitLen+bits <= MaxBitLen && uint16(b.refCount)+uint16(refs) <= MaxRefs
}

func (b *Builder) putBit(v bool) {
	byteIdx := b.bitLen / 8
	bitIdx := 7 - (b.bitLen % 8)
	if v {
		b.data[byteIdx] |= 1 << bitIdx
	} else {
		b.data[byteIdx] &^= 1 << bitIdx
	}
	b.bitLen++
}

// StoreBitZero appends a single 0 bit.
func (b *Builder) StoreBitZero() error {
	if !b.HasCapacity(1, 0) {
		return ErrOf(ErrCellOverflow)
	}
	b.putBit(false)
	return nil
}

// StoreBitOne appends a single 1 bit.
func (b *Builder) StoreBitOne() error {
	if !b.HasCapacity(1, 0) {
		return ErrOf(ErrCellOverflow)
	}
	b.putBit(true)
	return nil
}

// StoreSmallUint appends the low n bits (1..=8) of value, big-endian.
func (b *Builder) StoreSmallUint(value uint8, n uint8) error {
	if n < 1 || n > 8 {
		return Errf(ErrCellOverflow, "small uint width %d, want 1..=8", n)
	}
	if !b.HasCapacity(uint16(n), 0) {
		return ErrOf(ErrCellOverflow)
	}
	for i := int(n) - 1; i >= 0; i-- {
		b.putBit((value>>uint(i))&1 != 0)
	}
	return nil
}

// StoreUint8 appends an 8-bit unsigned integer.
func (b *Builder) StoreUint8(v uint8) error {
	return b.StoreRaw([]byte{v}, 8)
}

// StoreUint16 appends a 16-bit big-endian unsigned integer.
func (b *Builder) StoreUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return b.StoreRaw(buf[:], 16)
}

// StoreUint32 appends a 32-bit big-endian unsigned integer.
func (b *Builder) StoreUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return b.StoreRaw(buf[:], 32)
}

// StoreUint64 appends a 64-bit big-endian unsigned integer.
func (b *Builder) StoreUint64(v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return b.StoreRaw(buf[:], 64)
}

// StoreUint128 appends a 128-bit big-endian unsigned integer given as 16
// raw bytes.
func (b *Builder) StoreUint128(v []byte) error {
	if len(v) != 16 {
		return Errf(ErrCellOverflow, "u128 needs 16 bytes, got %d", len(v))
	}
	return b.StoreRaw(v, 128)
}

// StoreUint256 appends a 256-bit big-endian unsigned integer given as 32
// raw bytes.
func (b *Builder) StoreUint256(v []byte) error {
	if len(v) != 32 {
		return Errf(ErrCellOverflow, "u256 needs 32 bytes, got %d", len(v))
	}
	return b.StoreRaw(v, 256)
}

// StoreRaw appends the high n bits of raw (left-aligned, MSB-first), e.g.
// StoreRaw(b, 10) reads 10 bits starting at the top of b[0].
func (b *Builder) StoreRaw(raw []byte, n uint16) error {
	if !b.HasCapacity(n, 0) {
		return ErrOf(ErrCellOverflow)
	}
	for i := uint16(0); i < n; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		bit := (raw[byteIdx]>>bitIdx)&1 != 0
		b.putBit(bit)
	}
	return nil
}

// StoreZeros appends n zero bits.
func (b *Builder) StoreZeros(n uint16) error {
	if !b.HasCapacity(n, 0) {
		return ErrOf(ErrCellOverflow)
	}
	for i := uint16(0); i < n; i++ {
		b.putBit(false)
	}
	return nil
}

// StoreSlice appends all remaining data bits and references of s.
func (b *Builder) StoreSlice(s *Slice) error {
	if !b.HasCapacity(s.RemainingBits(), s.RemainingRefs()) {
		return ErrOf(ErrCellOverflow)
	}
	n := s.RemainingBits()
	for i := uint16(0); i < n; i++ {
		b.putBit(s.cell.bitAt(s.bitsStart + i))
	}
	for i := s.refsStart; i < s.refsEnd; i++ {
		b.refs[b.refCount] = s.cell.refs[i]
		b.refCount++
	}
	return nil
}

// StoreCellData appends c's raw data bits (not its references) to the
// builder, used by the Merkle proof/update builders to copy a cell's data
// into a rebuilt replica whose children may differ.
func (b *Builder) StoreCellData(c *Cell) error {
	if !b.HasCapacity(c.bitLen, 0) {
		return ErrOf(ErrCellOverflow)
	}
	for i := uint16(0); i < c.bitLen; i++ {
		b.putBit(c.bitAt(i))
	}
	return nil
}

// StoreReference appends a child reference, failing with ErrCellOverflow at
// the 5th reference.
func (b *Builder) StoreReference(c *Cell) error {
	if !b.HasCapacity(0, 1) {
		return ErrOf(ErrCellOverflow)
	}
	b.refs[b.refCount] = c
	b.refCount++
	return nil
}

// SetReferences replaces the builder's entire reference list with other's,
// used when rebuilding a cell whose children have been individually
// replaced (e.g. pruned) but whose data is unchanged.
func (b *Builder) SetReferences(other *RefsBuilder) {
	b.refs = other.refs
	b.refCount = other.refCount
}

// SetExotic marks (or unmarks) the cell under construction as exotic.
func (b *Builder) SetExotic(v bool) {
	b.exotic = v
}

// SetLevelMask overrides the computed level mask. Used by Merkle proof and
// pruned-branch construction, which must set a specific virtualized mask
// rather than let Build derive one from the children (a pruned branch has
// none; a proof replica's mask also covers its original cell's own mask).
func (b *Builder) SetLevelMask(m LevelMask) {
	b.levelMask = m
	b.hasMask = true
}

// RefsBuilder accumulates up to 4 references independently of a Builder's
// data bits, so that a cell's children can be finalized before its data is
// known (as the Merkle proof builder does: it discovers replacement
// children bottom-up before re-storing the parent's own data top-down).
type RefsBuilder struct {
	refs     [MaxRefs]*Cell
	refCount uint8
}

// StoreReference appends a reference, failing at the 5th.
func (r *RefsBuilder) StoreReference(c *Cell) error {
	if r.refCount >= MaxRefs {
		return ErrOf(ErrCellOverflow)
	}
	r.refs[r.refCount] = c
	r.refCount++
	return nil
}

// Len returns the number of stored references.
func (r *RefsBuilder) Len() uint8 {
	return r.refCount
}

// ComputeLevelMask returns the union of all stored children's level masks,
// the default a cell's own mask takes unless explicitly overridden.
func (r *RefsBuilder) ComputeLevelMask() LevelMask {
	var m LevelMask
	for i := uint8(0); i < r.refCount; i++ {
		m = m.Union(r.refs[i].descriptor.LevelMask)
	}
	return m
}

// Build finalizes the builder into an immutable Cell using a no-op
// Context.
func (b *Builder) Build() (*Cell, error) {
	return b.BuildExt(NoopContext{})
}

// BuildExt finalizes the builder into an immutable Cell, computing the
// descriptor and every per-level hash/depth, then routing the result
// through ctx, the allocation/interning/metrics collaborator (the same
// interface serves both "finalizer" and "context" roles in this
// implementation).
func (b *Builder) BuildExt(ctx Context) (*Cell, error) {
	c := &Cell{
		bitLen:   b.bitLen,
		refCount: b.refCount,
		refs:     b.refs,
	}

	byteLen := int((b.bitLen + 7) / 8)
	c.data = make([]byte, byteLen)
	copy(c.data, b.data[:byteLen])
	if b.bitLen%8 != 0 {
		applyCompletionTag(c.data, b.bitLen)
	}

	cellType := TypeOrdinary
	if b.exotic {
		if b.bitLen < 8 {
			return nil, Errf(ErrInvalidCell, "exotic cell has no type tag")
		}
		t, err := cellTypeFromByte(c.data[0])
		if err != nil {
			return nil, err
		}
		cellType = t
	}
	if arity, ok := cellType.fixedArity(); ok && b.refCount != arity {
		return nil, Errf(ErrInvalidCell, "%s cell requires %d references, got %d", cellType, arity, b.refCount)
	}
	c.cellType = cellType

	childMask := LevelMask(0)
	for i := uint8(0); i < b.refCount; i++ {
		childMask = childMask.Union(b.refs[i].descriptor.LevelMask)
	}

	mask := childMask
	if b.hasMask {
		mask = b.levelMask
	} else if cellType == TypePrunedBranch {
		mask = prunedBranchMaskFromData(c.data)
	}

	c.descriptor = Descriptor{
		RefCount:   b.refCount,
		Exotic:     b.exotic,
		WithHashes: false,
		LevelMask:  mask,
		BitLen:     b.bitLen,
	}

	if err := computeLevels(c); err != nil {
		return nil, err
	}

	return ctx.Finalize(c)
}

// applyCompletionTag sets the completion bit (a single 1) immediately after
// the last meaningful bit, leaving the remaining low bits of the final
// byte zero.
func applyCompletionTag(data []byte, bitLen uint16) {
	idx := bitLen / 8
	bitPos := 7 - (bitLen % 8)
	data[idx] |= 1 << bitPos
}

// prunedBranchMaskFromData reads the mask byte (data[1]) of a pruned branch
// cell's data, laid out as tag(8) | mask(8) | L*(hash(256)|depth(16)).
func prunedBranchMaskFromData(data []byte) LevelMask {
	if len(data) < 2 {
		return EmptyLevelMask
	}
	return NewLevelMask(data[1])
}

// computeLevels fills in c.levels for every level 0..=mask.Level(). For
// ordinary and other exotic cells this is the SHA-256 over the canonical
// image; for pruned branches, it instead parses the embedded per-level
// hash/depth pairs directly out of c.data, since a pruned branch exposes
// the hashes stored in its data rather than ones it computes itself.
func computeLevels(c *Cell) error {
	if c.cellType == TypePrunedBranch {
		return computePrunedBranchLevels(c)
	}

	maxLevel := c.descriptor.LevelMask.Level()
	parentIsMerkle := c.cellType.IsMerkle()
	refs := c.refs[:c.refCount]

	for i := uint8(0); i <= maxLevel; i++ {
		image := canonicalImage(c.descriptor, c.data, refs, parentIsMerkle, i)
		idx := c.descriptor.LevelMask.HashIndex(i)
		c.levels[idx].hash = sum256(image)
		c.levels[idx].depth = computeDepth(refs, parentIsMerkle, i)
	}
	return nil
}

func computeDepth(refs []*Cell, parentIsMerkle bool, i uint8) uint16 {
	if len(refs) == 0 {
		return 0
	}
	var maxDepth uint16
	for _, ref := range refs {
		childLevel := childEffectiveLevel(parentIsMerkle, i)
		d := ref.Depth(childLevel)
		if d > maxDepth {
			maxDepth = d
		}
	}
	maxDepth++
	if maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}
	return maxDepth
}

// computePrunedBranchLevels parses data = tag(1) | mask(1) | (level()+1) *
// (hash(32) | depth(2)) into c.levels: one entry per query level in
// 0..=mask.Level() inclusive, in ascending order, matching the direct
// (non-popcount-collapsing) indexing Cell.hashIndex uses for pruned
// branches.
func computePrunedBranchLevels(c *Cell) error {
	mask := c.descriptor.LevelMask
	count := int(mask.Level()) + 1
	wantLen := 2 + count*(HashSize+2)
	if len(c.data) < wantLen {
		return Errf(ErrInvalidCell, "pruned branch data too short: %d, want %d", len(c.data), wantLen)
	}
	off := 2
	for i := 0; i < count; i++ {
		var h Hash
		copy(h[:], c.data[off:off+HashSize])
		depth := binary.BigEndian.Uint16(c.data[off+HashSize : off+HashSize+2])
		c.levels[i].hash = h
		c.levels[i].depth = depth
		off += HashSize + 2
	}
	return nil
}
