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

// MerkleUpdate is a self-describing diff between two cell trees: the
// representation hash/depth of each side, plus a partially pruned replica
// of each (old carries only the cells the update needed to remove or
// replace; new carries only the cells it needed to add).
type MerkleUpdate struct {
	OldHash  cell.Hash
	NewHash  cell.Hash
	OldDepth uint16
	NewDepth uint16
	Old      *cell.Cell
	New      *cell.Cell
}

// Apply reconstructs the updated tree from old using a no-op Context.
func (m *MerkleUpdate) Apply(old *cell.Cell) (*cell.Cell, error) {
	return m.ApplyExt(old, cell.NoopContext{})
}

// ApplyExt reconstructs the updated tree from old: it checks old's repr
// hash against m.OldHash, collects the subset of old's cells the update
// actually references, walks m.New substituting those cells in wherever
// the new side's pruned branches point back at the unchanged old subtree,
// and checks the result's repr hash against m.NewHash.
func (m *MerkleUpdate) ApplyExt(old *cell.Cell, ctx cell.Context) (*cell.Cell, error) {
	if old.ReprHash() != m.OldHash {
		return nil, cell.Errf(cell.ErrInvalidData, "apply: old cell hash %s does not match update old hash %s", old.ReprHash(), m.OldHash)
	}
	if m.OldHash == m.NewHash {
		return old, nil
	}

	glog.V(2).Infof("apply: %x -> %x", m.OldHash, m.NewHash)

	oldCellHashes, err := m.findOldCellHashes()
	if err != nil {
		return nil, err
	}
	oldCells := collectOldCells(old, oldCellHashes)

	a := &updateApplier{
		oldCells: oldCells,
		newCells: make(map[cell.Hash]*cell.Cell),
		ctx:      ctx,
	}
	built, err := a.run(m.New, 0)
	if err != nil {
		return nil, err
	}
	if built.ReprHash() != m.NewHash {
		return nil, cell.Errf(cell.ErrInvalidData, "apply: rebuilt cell hash does not match update new hash")
	}
	return built, nil
}

// ComputeRemovedCells returns, for every cell reachable from old whose hash
// does not appear anywhere in the update's new side, how many references to
// it are held by old or by other such cells (old itself counts 1). Subtrees
// whose root hash appears in the new side are neither counted nor walked.
func (m *MerkleUpdate) ComputeRemovedCells(old *cell.Cell) (map[cell.Hash]int, error) {
	if old.ReprHash() != m.OldHash || m.Old.Hash(0) != old.ReprHash() {
		return nil, cell.Errf(cell.ErrInvalidData, "compute removed cells: old cell does not match update")
	}
	if m.OldHash == m.NewHash {
		return map[cell.Hash]int{}, nil
	}

	newCells := make(map[cell.Hash]bool)
	{
		visited := make(map[cell.Hash]bool)
		merkleDepth := uint8(0)
		if m.New.CellType().IsMerkle() {
			merkleDepth = 1
		}
		visited[m.New.ReprHash()] = true
		newCells[m.New.Hash(0)] = true

		type walkFrame struct {
			c       *cell.Cell
			nextRef int
		}
		stack := []*walkFrame{{c: m.New}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.nextRef < top.c.ReferenceCount() {
				child, err := top.c.Reference(top.nextRef)
				top.nextRef++
				if err != nil {
					return nil, err
				}
				if visited[child.ReprHash()] {
					continue
				}
				visited[child.ReprHash()] = true

				newCells[child.Hash(merkleDepth)] = true

				if child.CellType().IsPrunedBranch() {
					continue
				}
				if child.CellType().IsMerkle() {
					merkleDepth++
				}
				stack = append(stack, &walkFrame{c: child})
				continue
			}
			if top.c.CellType().IsMerkle() {
				merkleDepth--
			}
			stack = stack[:len(stack)-1]
		}
	}

	result := make(map[cell.Hash]int)

	type walkFrame struct {
		c       *cell.Cell
		nextRef int
	}
	var stack []*walkFrame
	if !newCells[old.ReprHash()] {
		result[old.ReprHash()] = 1
		stack = append(stack, &walkFrame{c: old})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.nextRef < top.c.ReferenceCount() {
			child, err := top.c.Reference(top.nextRef)
			top.nextRef++
			if err != nil {
				return nil, err
			}
			h := child.ReprHash()
			if newCells[h] {
				continue
			}
			if _, ok := result[h]; ok {
				result[h]++
				continue
			}
			result[h] = 1

			if child.ReferenceCount() == 0 {
				continue
			}
			stack = append(stack, &walkFrame{c: child})
			continue
		}
		stack = stack[:len(stack)-1]
	}

	return result, nil
}

// findOldCellHashes walks m.Old and m.New to determine the set of hashes
// that must be present in the real old tree for Apply to succeed: every
// cell kept (not pruned) on the old side, and the hash pointed to by every
// pruned branch on the new side that stands in for an unchanged old cell.
// It returns an error if the new side references a pruned branch one
// Merkle level below its current depth whose hash was never seen on the
// old side, meaning the update was built against a different old tree.
func (m *MerkleUpdate) findOldCellHashes() (map[cell.Hash]bool, error) {
	oldCells := make(map[cell.Hash]bool)

	type walkFrame struct {
		c       *cell.Cell
		nextRef int
	}

	visited := make(map[cell.Hash]bool)
	merkleDepth := uint8(0)
	visited[m.Old.ReprHash()] = true
	oldCells[m.Old.Hash(merkleDepth)] = true
	if m.Old.CellType().IsMerkle() {
		merkleDepth++
	}

	stack := []*walkFrame{{c: m.Old}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.nextRef < top.c.ReferenceCount() {
			child, err := top.c.Reference(top.nextRef)
			top.nextRef++
			if err != nil {
				return nil, err
			}
			if visited[child.ReprHash()] {
				continue
			}
			visited[child.ReprHash()] = true

			oldCells[child.Hash(merkleDepth)] = true

			if child.CellType().IsPrunedBranch() {
				continue
			}
			if child.CellType().IsMerkle() {
				merkleDepth++
			}
			stack = append(stack, &walkFrame{c: child})
			continue
		}
		if top.c.CellType().IsMerkle() {
			merkleDepth--
		}
		stack = stack[:len(stack)-1]
	}

	visited = make(map[cell.Hash]bool)
	visited[m.New.ReprHash()] = true
	if m.New.CellType().IsMerkle() {
		merkleDepth++
	}
	stack = []*walkFrame{{c: m.New}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.nextRef < top.c.ReferenceCount() {
			child, err := top.c.Reference(top.nextRef)
			top.nextRef++
			if err != nil {
				return nil, err
			}
			if visited[child.ReprHash()] {
				continue
			}
			visited[child.ReprHash()] = true

			if child.CellType().IsPrunedBranch() {
				mask := child.Descriptor().LevelMask
				if mask.Level() == merkleDepth+1 && !oldCells[child.Hash(merkleDepth)] {
					return nil, cell.Errf(cell.ErrInvalidData, "new side references an old cell not present in this update")
				}
				continue
			}
			if child.CellType().IsMerkle() {
				merkleDepth++
			}
			stack = append(stack, &walkFrame{c: child})
			continue
		}
		if top.c.CellType().IsMerkle() {
			merkleDepth--
		}
		stack = stack[:len(stack)-1]
	}

	return oldCells, nil
}

// collectOldCells walks the real (caller-supplied) old tree, keeping only
// the cells whose hash at their current Merkle depth is in oldCellHashes —
// exactly the cells the update's pruned branches can point back to.
func collectOldCells(old *cell.Cell, oldCellHashes map[cell.Hash]bool) map[cell.Hash]*cell.Cell {
	visited := make(map[cell.Hash]bool)
	oldCells := make(map[cell.Hash]*cell.Cell)

	merkleDepth := uint8(0)
	visited[old.ReprHash()] = true
	oldCells[old.Hash(merkleDepth)] = old
	if old.CellType().IsMerkle() {
		merkleDepth++
	}

	type walkFrame struct {
		c       *cell.Cell
		nextRef int
	}
	stack := []*walkFrame{{c: old}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.nextRef < top.c.ReferenceCount() {
			child, err := top.c.Reference(top.nextRef)
			top.nextRef++
			if err != nil {
				continue
			}
			if visited[child.ReprHash()] {
				continue
			}
			visited[child.ReprHash()] = true

			h := child.Hash(merkleDepth)
			if oldCellHashes[h] {
				oldCells[h] = child
				if child.CellType().IsMerkle() {
					merkleDepth++
				}
				stack = append(stack, &walkFrame{c: child})
			}
			continue
		}
		if top.c.CellType().IsMerkle() {
			merkleDepth--
		}
		stack = stack[:len(stack)-1]
	}

	return oldCells
}

// updateApplier rebuilds the new tree bottom-up, substituting old cells
// back in for the pruned branches on the new side that stand in for them,
// memoizing both kinds of lookup by hash so a cell shared by many parents
// is only resolved once.
type updateApplier struct {
	oldCells map[cell.Hash]*cell.Cell
	newCells map[cell.Hash]*cell.Cell
	ctx      cell.Context
}

func (a *updateApplier) run(c *cell.Cell, merkleDepth uint8) (*cell.Cell, error) {
	childMerkleDepth := merkleDepth
	if c.CellType().IsMerkle() {
		childMerkleDepth++
	}

	result := cell.NewBuilder()
	result.SetExotic(c.Descriptor().Exotic)

	for i := 0; i < c.ReferenceCount(); i++ {
		child, err := c.Reference(i)
		if err != nil {
			return nil, err
		}

		var resolved *cell.Cell
		if child.CellType().IsPrunedBranch() {
			mask := child.Descriptor().LevelMask
			if mask.Byte()&(1<<childMerkleDepth) != 0 {
				childHash := child.Hash(mask.Level() - 1)
				oc, ok := a.oldCells[childHash]
				if !ok {
					return nil, cell.Errf(cell.ErrInvalidData, "apply: no old cell for pruned branch %s", childHash)
				}
				glog.V(4).Infof("apply: substituting old cell %x for pruned branch", childHash)
				resolved = oc
			} else {
				resolved = child
			}
		} else {
			childHash := child.Hash(childMerkleDepth)
			if nc, ok := a.newCells[childHash]; ok {
				resolved = nc
			} else {
				built, err := a.run(child, childMerkleDepth)
				if err != nil {
					return nil, err
				}
				a.newCells[childHash] = built
				resolved = built
			}
		}

		if err := result.StoreReference(resolved); err != nil {
			return nil, err
		}
	}

	if err := result.StoreCellData(c); err != nil {
		return nil, err
	}

	return result.BuildExt(a.ctx)
}

// MerkleUpdateBuilder builds a MerkleUpdate between two cell trees, where
// filter decides which cells of old survive unpruned in the old-side proof
// (everything filter excludes is assumed derivable from new instead).
type MerkleUpdateBuilder struct {
	old, new *cell.Cell
	filter   MerkleFilter
}

// CreateUpdate starts building a Merkle update between old and new, using
// filter to decide which of old's cells the old-side proof must keep.
func CreateUpdate(old, new *cell.Cell, filter MerkleFilter) *MerkleUpdateBuilder {
	return &MerkleUpdateBuilder{old: old, new: new, filter: filter}
}

// Build runs the update construction using a no-op Context.
func (b *MerkleUpdateBuilder) Build() (*MerkleUpdate, error) {
	return b.BuildExt(cell.NoopContext{})
}

// BuildExt runs the update construction using ctx to finalize every
// rebuilt cell.
func (b *MerkleUpdateBuilder) BuildExt(ctx cell.Context) (*MerkleUpdate, error) {
	oldHash := b.old.ReprHash()
	oldDepth := b.old.ReprDepth()
	newHash := b.new.ReprHash()
	newDepth := b.new.ReprDepth()

	// Identical trees: the update is just a pruned branch standing in for
	// the whole (unchanged) tree on both sides.
	if oldHash == newHash {
		pruned, err := MakePrunedBranchExt(b.old, 0, ctx)
		if err != nil {
			return nil, err
		}
		return &MerkleUpdate{
			OldHash: oldHash, NewHash: oldHash,
			OldDepth: oldDepth, NewDepth: oldDepth,
			Old: pruned, New: pruned,
		}, nil
	}

	// Build the new-side proof from cells the inverted filter says are
	// new (i.e. filter itself says they were NOT part of old), tracking
	// which hashes got collapsed into pruned branches along the way.
	newProof, prunedBranches, err := NewMerkleProofBuilder(b.new, Invert(b.filter)).
		TrackPrunedBranches().
		AllowDifferentRoot().
		WithContext(ctx).
		BuildWithPrunedBranches()
	if err != nil {
		return nil, err
	}

	// Walk old to find every cell that changed: a cell is changed if one
	// of its children changed, or if one of its children got pruned out of
	// the new-side proof (meaning the new tree kept that child as-is via a
	// pruned branch, so the old-side proof must keep the parent unpruned,
	// with the child present at least as a pruned branch carrying its hash).
	r := &updateDiffResolver{
		prunedBranches: prunedBranches,
		visited:        make(map[cell.Hash]bool),
		filter:         b.filter,
		changedCells:   make(map[cell.Hash]bool),
	}
	if r.fill(b.old, false) {
		r.changedCells[oldHash] = true
	}

	changed := make([]cell.Hash, 0, len(r.changedCells))
	for h := range r.changedCells {
		changed = append(changed, h)
	}
	oldProof, err := NewMerkleProofBuilder(b.old, NewHashSetFilter(changed...)).
		AllowDifferentRoot().
		WithContext(ctx).
		Build()
	if err != nil {
		return nil, err
	}

	return &MerkleUpdate{
		OldHash: oldHash, NewHash: newHash,
		OldDepth: oldDepth, NewDepth: newDepth,
		Old: oldProof.Cell, New: newProof.Cell,
	}, nil
}

// updateDiffResolver recurses over the old tree deciding which cells
// belong in the old-side proof: a cell survives if filter says to include
// it (directly or via an IncludeSubtree ancestor) and at least one of its
// children either changed or was itself collapsed into a pruned branch on
// the new side.
type updateDiffResolver struct {
	prunedBranches map[cell.Hash]bool
	visited        map[cell.Hash]bool
	filter         MerkleFilter
	changedCells   map[cell.Hash]bool
}

func (r *updateDiffResolver) fill(c *cell.Cell, skipFilter bool) bool {
	reprHash := c.ReprHash()
	if r.visited[reprHash] {
		return false
	}
	r.visited[reprHash] = true

	isPruned := false
	if v, tracked := r.prunedBranches[reprHash]; tracked {
		if v {
			return false
		}
		r.prunedBranches[reprHash] = true
		isPruned = true
	}

	var processChildren bool
	if skipFilter {
		processChildren = true
	} else {
		switch r.filter.Check(reprHash) {
		case Skip:
			processChildren = false
		case Include:
			processChildren = true
		case IncludeSubtree:
			skipFilter = true
			processChildren = true
		}
	}

	result := false
	if processChildren {
		for i := 0; i < c.ReferenceCount(); i++ {
			child, err := c.Reference(i)
			if err != nil {
				continue
			}
			if r.fill(child, skipFilter) {
				result = true
			}
		}
		if result {
			r.changedCells[reprHash] = true
		}
	}

	return result || isPruned
}
