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
	"github.com/golang/glog"

	"github.com/broxus-go/tvmcell/cell"
)

// MerkleProof is the result of building a proof: the original root's
// identity (hash, depth) plus a partially pruned replica carrying enough
// structure to verify it.
type MerkleProof struct {
	Hash  cell.Hash
	Depth uint16
	Cell  *cell.Cell
}

// MerkleProofBuilder builds a MerkleProof for a root cell, pruning
// whatever the filter excludes.
type MerkleProofBuilder struct {
	root                *cell.Cell
	filter              MerkleFilter
	allowDifferentRoot  bool
	trackPrunedBranches bool
	ctx                 cell.Context
}

// NewMerkleProofBuilder returns a builder for root using f to decide what
// to keep.
func NewMerkleProofBuilder(root *cell.Cell, f MerkleFilter) *MerkleProofBuilder {
	return &MerkleProofBuilder{root: root, filter: f, ctx: cell.NoopContext{}}
}

// AllowDifferentRoot lets Build succeed even if the filter itself would
// skip the root (the root can never actually be replaced by a pruned
// branch, since there is no parent to hold one, so this just treats the
// root as included regardless of what the filter says about it).
func (b *MerkleProofBuilder) AllowDifferentRoot() *MerkleProofBuilder {
	b.allowDifferentRoot = true
	return b
}

// TrackPrunedBranches makes the build record the set of hashes that were
// replaced by pruned branches during construction, returned by
// BuildWithPrunedBranches (Build discards it).
func (b *MerkleProofBuilder) TrackPrunedBranches() *MerkleProofBuilder {
	b.trackPrunedBranches = true
	return b
}

// WithContext sets the cell.Context used to finalize every rebuilt cell.
func (b *MerkleProofBuilder) WithContext(ctx cell.Context) *MerkleProofBuilder {
	b.ctx = ctx
	return b
}

// Build runs the proof construction.
func (b *MerkleProofBuilder) Build() (*MerkleProof, error) {
	c, _, err := b.build()
	if err != nil {
		return nil, err
	}
	return &MerkleProof{Hash: b.root.ReprHash(), Depth: b.root.ReprDepth(), Cell: c}, nil
}

// BuildWithPrunedBranches runs the proof construction and also returns the
// map of hashes replaced by pruned branches (valid regardless of whether
// TrackPrunedBranches was called; it is simply empty if not tracking).
func (b *MerkleProofBuilder) BuildWithPrunedBranches() (*MerkleProof, map[cell.Hash]bool, error) {
	c, pruned, err := b.build()
	if err != nil {
		return nil, nil, err
	}
	return &MerkleProof{Hash: b.root.ReprHash(), Depth: b.root.ReprDepth(), Cell: c}, pruned, nil
}

// frame is one level of the explicit post-order traversal stack: the
// original cell whose references are being walked, how far that walk has
// progressed, the Merkle nesting depth at this level, and the
// already-resolved children accumulated so far.
type frame struct {
	c           *cell.Cell
	nextRef     int
	merkleDepth uint8
	children    *cell.RefsBuilder
}

func (b *MerkleProofBuilder) build() (*cell.Cell, map[cell.Hash]bool, error) {
	if b.filter.Check(b.root.ReprHash()) == Skip && !b.allowDifferentRoot {
		return nil, nil, cell.ErrOf(cell.ErrEmptyProof)
	}

	var prunedBranches map[cell.Hash]bool
	if b.trackPrunedBranches {
		prunedBranches = make(map[cell.Hash]bool)
	}

	cells := make(map[cell.Hash]*cell.Cell)
	rootMerkleDepth := uint8(0)
	if b.root.CellType().IsMerkle() {
		rootMerkleDepth = 1
	}
	stack := []*frame{{c: b.root, merkleDepth: rootMerkleDepth, children: &cell.RefsBuilder{}}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.nextRef < top.c.ReferenceCount() {
			child, err := top.c.Reference(top.nextRef)
			top.nextRef++
			if err != nil {
				return nil, nil, err
			}
			childHash := child.ReprHash()

			resolved, cached := cells[childHash]
			if !cached {
				action := b.filter.Check(childHash)
				switch {
				case action == IncludeSubtree:
					resolved = child
				case action == Skip && child.ReferenceCount() > 0:
					glog.V(4).Infof("proof: pruning %x at merkle depth %d", childHash, top.merkleDepth)
					pruned, err := MakePrunedBranchExt(child, top.merkleDepth, b.ctx)
					if err != nil {
						return nil, nil, err
					}
					if prunedBranches != nil {
						prunedBranches[childHash] = false
					}
					resolved = pruned
				default:
					childMerkleDepth := top.merkleDepth
					if child.CellType().IsMerkle() {
						childMerkleDepth++
					}
					stack = append(stack, &frame{c: child, merkleDepth: childMerkleDepth, children: &cell.RefsBuilder{}})
					continue
				}
			}
			if err := top.children.StoreReference(resolved); err != nil {
				return nil, nil, err
			}
			continue
		}

		// No references left: finalize this frame's cell.
		stack = stack[:len(stack)-1]

		childMask := top.c.Descriptor().LevelMask.Union(top.children.ComputeLevelMask())
		merkleOffset := uint8(0)
		if top.c.CellType().IsMerkle() {
			merkleOffset = 1
		}

		cb := cell.NewBuilder()
		cb.SetExotic(top.c.Descriptor().Exotic)
		cb.SetLevelMask(childMask.Virtualize(merkleOffset))
		if err := cb.StoreCellData(top.c); err != nil {
			return nil, nil, err
		}
		cb.SetReferences(top.children)
		built, err := cb.BuildExt(b.ctx)
		if err != nil {
			return nil, nil, err
		}
		cells[top.c.ReprHash()] = built

		if len(stack) == 0 {
			return built, prunedBranches, nil
		}
		parent := stack[len(stack)-1]
		if err := parent.children.StoreReference(built); err != nil {
			return nil, nil, err
		}
	}

	return nil, nil, cell.ErrOf(cell.ErrEmptyProof)
}

// ancestorPathHashes does an iterative DFS from root looking for the first
// cell whose representation hash is target, returning the representation
// hashes of every ancestor on the path (root first), or ok=false if no
// cell with that hash is reachable.
func ancestorPathHashes(root *cell.Cell, target cell.Hash) (hashes []cell.Hash, ok bool) {
	type pathFrame struct {
		c    *cell.Cell
		next int
	}
	stack := []*pathFrame{{c: root}}
	found := false
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < top.c.ReferenceCount() {
			child, err := top.c.Reference(top.next)
			top.next++
			if err != nil {
				continue
			}
			if child.ReprHash() == target {
				found = true
				break
			}
			stack = append(stack, &pathFrame{c: child})
			continue
		}
		stack = stack[:len(stack)-1]
	}
	if !found {
		return nil, false
	}
	hashes = make([]cell.Hash, 0, len(stack))
	for _, f := range stack {
		hashes = append(hashes, f.c.ReprHash())
	}
	return hashes, true
}

// CreateForCell builds a proof for a single target cell reachable from
// root: every ancestor on the first-found path to target, plus target
// itself, is Included; everything else is Skip, so every other cell that
// has references collapses to a pruned branch, while cells without
// references are kept as they are.
func CreateForCell(root *cell.Cell, target cell.Hash) (*MerkleProofBuilder, error) {
	ancestors, ok := ancestorPathHashes(root, target)
	if !ok {
		return nil, cell.Errf(cell.ErrInvalidData, "no cell with hash %s reachable from root", target)
	}
	set := NewHashSetFilter(ancestors...)
	set[target] = struct{}{}
	return NewMerkleProofBuilder(root, set), nil
}
