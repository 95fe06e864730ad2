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

package merkle

import "github.com/broxus-go/tvmcell/cell"

// prunedBranchTag is the data[0] type byte for pruned branch cells.
const prunedBranchTag = 0x01

// maxMerkleDepth is the deepest a Merkle-proof/update nesting may go
// before a pruned branch's shifted mask would overflow the 3-bit field.
const maxMerkleDepth = 2

// MakePrunedBranch stands source in for a suppressed subtree, to be
// embedded in a tree at Merkle nesting depth d (0..=2). The returned cell's
// level mask always has bit d set, marking the depth at which it can later
// be substituted back for source; it carries source's hash and depth at
// every level up to its own, so a parent reading the pruned branch's
// Hash/Depth at any such level sees exactly what it would have seen
// reading the original subtree.
func MakePrunedBranch(source *cell.Cell, d uint8) (*cell.Cell, error) {
	return MakePrunedBranchExt(source, d, cell.NoopContext{})
}

// MakePrunedBranchExt is MakePrunedBranch with an explicit Context.
func MakePrunedBranchExt(source *cell.Cell, d uint8, ctx cell.Context) (*cell.Cell, error) {
	if d > maxMerkleDepth {
		return nil, cell.Errf(cell.ErrInvalidData, "merkle depth %d exceeds %d", d, maxMerkleDepth)
	}
	sourceMask := source.Descriptor().LevelMask

	// Bit d marks the nesting depth at which this branch is embedded, so a
	// later reader crossing merkle depth d recognizes it as substitutable;
	// source's own bits are pushed above it to keep any deeper virtual
	// levels it already carried. Do the shift in a width wider than the
	// 3-bit field so an overflow (source already carrying levels that
	// leave no room above bit d) is caught instead of silently losing
	// source's high bits to truncation.
	combined := uint16(sourceMask.Byte())<<(d+1) | uint16(1)<<d
	if combined > uint16(cell.MaxLevelMask) {
		return nil, cell.Errf(cell.ErrInvalidData, "merkle depth %d leaves no room for source's level mask %03b", d, sourceMask.Byte())
	}
	shifted := cell.NewLevelMask(uint8(combined))

	b := cell.NewBuilder()
	if err := b.StoreUint8(prunedBranchTag); err != nil {
		return nil, err
	}
	if err := b.StoreUint8(shifted.Byte()); err != nil {
		return nil, err
	}
	// source.Hash/Depth clamp above source's own level, so levels beyond it
	// just repeat source's representation hash — exactly the value a
	// virtual level with nothing new underneath should report.
	for lvl := uint8(0); lvl <= shifted.Level(); lvl++ {
		h := source.Hash(lvl)
		if err := b.StoreUint256(h.Bytes()); err != nil {
			return nil, err
		}
		if err := b.StoreUint16(source.Depth(lvl)); err != nil {
			return nil, err
		}
	}
	b.SetExotic(true)
	b.SetLevelMask(shifted)
	return b.BuildExt(ctx)
}
