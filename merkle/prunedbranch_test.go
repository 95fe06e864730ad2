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

import (
	"testing"

	"github.com/broxus-go/tvmcell/cell"
)

func buildLeafWithRef(t *testing.T) *cell.Cell {
	t.Helper()
	leaf, err := cell.NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build leaf: %v", err)
	}
	b := cell.NewBuilder()
	_ = b.StoreReference(leaf)
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func TestMakePrunedBranchPreservesHashAndDepth(t *testing.T) {
	source := buildLeafWithRef(t)

	pruned, err := MakePrunedBranch(source, 0)
	if err != nil {
		t.Fatalf("MakePrunedBranch: %v", err)
	}
	if pruned.CellType() != cell.TypePrunedBranch {
		t.Fatalf("CellType() = %v, want TypePrunedBranch", pruned.CellType())
	}
	if pruned.ReferenceCount() != 0 {
		t.Fatalf("ReferenceCount() = %d, want 0", pruned.ReferenceCount())
	}
	if pruned.Hash(0) != source.ReprHash() {
		t.Fatal("pruned branch's Hash(0) must equal source's representation hash")
	}
	if pruned.Depth(0) != source.ReprDepth() {
		t.Fatal("pruned branch's Depth(0) must equal source's representation depth")
	}
}

func TestMakePrunedBranchMaskHasEmbeddingBitSet(t *testing.T) {
	source := buildLeafWithRef(t)

	for d := uint8(0); d <= maxMerkleDepth; d++ {
		pruned, err := MakePrunedBranch(source, d)
		if err != nil {
			t.Fatalf("MakePrunedBranch(d=%d): %v", d, err)
		}
		mask := pruned.Descriptor().LevelMask
		if mask.Byte()&(1<<d) == 0 {
			t.Fatalf("d=%d: mask %#b does not have bit %d set", d, mask.Byte(), d)
		}
	}
}

func TestMakePrunedBranchRejectsDepthBeyondMax(t *testing.T) {
	source := buildLeafWithRef(t)
	if _, err := MakePrunedBranch(source, maxMerkleDepth+1); err == nil {
		t.Fatal("expected an error for a merkle depth beyond maxMerkleDepth")
	}
}

// buildPrunedSource returns a source cell whose own level mask has bit 0
// set (it is itself a once-pruned branch), so embedding it at d>=1 exercises
// the shift-and-combine arithmetic in MakePrunedBranchExt instead of the
// trivial, always-zero sourceMask every other test in this file uses.
func buildPrunedSource(t *testing.T) *cell.Cell {
	t.Helper()
	leaf := buildLeafWithRef(t)
	pruned, err := MakePrunedBranch(leaf, 0)
	if err != nil {
		t.Fatalf("MakePrunedBranch(leaf, 0): %v", err)
	}
	if pruned.Descriptor().LevelMask.Byte() != 0b001 {
		t.Fatalf("precondition: source mask = %03b, want 001", pruned.Descriptor().LevelMask.Byte())
	}
	return pruned
}

func TestMakePrunedBranchShiftsNonTrivialSourceMaskAtDepth1(t *testing.T) {
	source := buildPrunedSource(t)

	pruned, err := MakePrunedBranch(source, 1)
	if err != nil {
		t.Fatalf("MakePrunedBranch(d=1): %v", err)
	}
	// source's mask bit 0 shifts left by d+1=2 to land on bit 2, combined
	// with this branch's own embedding bit 1.
	got := pruned.Descriptor().LevelMask.Byte()
	if want := byte(0b110); got != want {
		t.Fatalf("mask = %03b, want %03b", got, want)
	}
	if pruned.Hash(0) != source.Hash(0) {
		t.Fatal("Hash(0) must still equal source's own Hash(0)")
	}
	if pruned.Hash(2) != source.Hash(1) {
		t.Fatal("Hash(2) must equal source's Hash(1), carried one level up by the embedding")
	}
}

func TestMakePrunedBranchRejectsOverflowingSourceMaskAtDepth2(t *testing.T) {
	source := buildPrunedSource(t)

	// source's mask bit 0 would shift left by d+1=3 to land on bit 3, one
	// past the 3-bit field: there is no room left at this depth.
	if _, err := MakePrunedBranch(source, 2); err == nil {
		t.Fatal("expected an error embedding a once-pruned source at merkle depth 2")
	}
}

func TestMakePrunedBranchRoundTripsThroughUpdate(t *testing.T) {
	old := buildLeafWithRef(t)
	newLeafBuilder := cell.NewBuilder()
	_ = newLeafBuilder.StoreBitOne()
	newLeaf, err := newLeafBuilder.Build()
	if err != nil {
		t.Fatalf("Build newLeaf: %v", err)
	}
	midBuilder := cell.NewBuilder()
	_ = midBuilder.StoreReference(old)
	_ = midBuilder.StoreReference(newLeaf)
	newRoot, err := midBuilder.Build()
	if err != nil {
		t.Fatalf("Build newRoot: %v", err)
	}

	includeAll := FilterFunc(func(cell.Hash) FilterAction { return Include })
	update, err := CreateUpdate(old, newRoot, includeAll).Build()
	if err != nil {
		t.Fatalf("CreateUpdate: %v", err)
	}
	got, err := update.Apply(old)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.ReprHash() != newRoot.ReprHash() {
		t.Fatal("applying the update must reproduce the new tree's representation hash")
	}
}
