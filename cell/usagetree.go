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

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// UsageMode selects when a TrackedCell records a visit to the underlying
// set: OnLoad records every time a cell is dereferenced through the
// tracker (its data or references observed at all), OnDataAccess only
// records a visit when a slice is opened on the cell or one of its
// references is extracted, so a cell that is merely tracked (reached but
// never read from) stays unrecorded.
type UsageMode int

const (
	// UsageOnLoad records a visit whenever a tracked cell is touched at
	// all.
	UsageOnLoad UsageMode = iota
	// UsageOnDataAccess records a visit only when TrackedCell.AsSlice or
	// TrackedCell.Reference is called on a tracked cell.
	UsageOnDataAccess
)

func hashLess(a, b Hash) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// UsageTree records which cells of a DAG a traversal actually visited, the
// building block a Merkle proof/update constructs its filter from: wrap a
// root in Track, run the traversal the caller cares about (e.g. a
// contract execution reading account state), then pass ToPredicate's
// result to merkle.FromPredicate to build a MerkleFilter that includes
// exactly the visited cells.
//
// The visited set is stored in an ordered google/btree set rather than a
// map so that iterating it (via Each) produces a deterministic order,
// useful for reproducible proof construction and for tests.
type UsageTree struct {
	mu      sync.Mutex
	mode    UsageMode
	visited *btree.BTreeG[Hash]
}

// NewUsageTree returns an empty UsageTree recording visits in mode.
func NewUsageTree(mode UsageMode) *UsageTree {
	return &UsageTree{
		mode:    mode,
		visited: btree.NewG(32, hashLess),
	}
}

// Mode returns the tree's recording mode.
func (t *UsageTree) Mode() UsageMode {
	return t.mode
}

// markVisited records h as visited.
func (t *UsageTree) markVisited(h Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visited.ReplaceOrInsert(h)
}

// Visited reports whether h has been recorded.
func (t *UsageTree) Visited(h Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.visited.Get(h)
	return ok
}

// Len returns the number of distinct hashes recorded so far.
func (t *UsageTree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visited.Len()
}

// Each calls fn once for every recorded hash, in ascending byte order.
func (t *UsageTree) Each(fn func(Hash) bool) {
	t.mu.Lock()
	snapshot := t.visited.Clone()
	t.mu.Unlock()
	snapshot.Ascend(func(h Hash) bool {
		return fn(h)
	})
}

// TrackedCell wraps a Cell so that loads through it are recorded into the
// owning UsageTree, including lazily tracking whichever children get
// dereferenced.
type TrackedCell struct {
	tree *UsageTree
	cell *Cell
}

// Track returns a TrackedCell wrapping root under t. If t's mode is
// UsageOnLoad, root is recorded immediately.
func (t *UsageTree) Track(root *Cell) *TrackedCell {
	if t.mode == UsageOnLoad {
		t.markVisited(root.ReprHash())
	}
	return &TrackedCell{tree: t, cell: root}
}

// Cell returns the underlying, untracked cell.
func (tc *TrackedCell) Cell() *Cell {
	return tc.cell
}

// AsSlice returns a read cursor over the cell's data, recording a visit if
// the tree's mode is UsageOnDataAccess (UsageOnLoad already recorded the
// visit in Track). The returned slice keeps tracking alive: references
// loaded through it are wrapped the same way Reference wraps them.
func (tc *TrackedCell) AsSlice() (*TrackedSlice, error) {
	if tc.tree.mode == UsageOnDataAccess {
		tc.tree.markVisited(tc.cell.ReprHash())
	}
	s, err := tc.cell.AsSlice()
	if err != nil {
		return nil, err
	}
	return &TrackedSlice{tree: tc.tree, Slice: s}, nil
}

// Reference returns the i'th child, wrapped for continued tracking. A
// reference extraction counts as data access in its own right, so
// UsageOnDataAccess marks the parent here too, not just on AsSlice.
func (tc *TrackedCell) Reference(i int) (*TrackedCell, error) {
	if tc.tree.mode == UsageOnDataAccess {
		tc.tree.markVisited(tc.cell.ReprHash())
	}
	c, err := tc.cell.Reference(i)
	if err != nil {
		return nil, err
	}
	return tc.tree.Track(c), nil
}

// TrackedSlice is a Slice that keeps reference loads tracked: every other
// read is promoted unchanged from the embedded Slice, but LoadReference and
// LoadReferenceCloned return a *TrackedCell instead of a bare *Cell so a
// chain of slice-mediated reads keeps recording into the same UsageTree.
type TrackedSlice struct {
	tree *UsageTree
	*Slice
}

// LoadReference returns the next reference wrapped for continued tracking.
func (s *TrackedSlice) LoadReference() (*TrackedCell, error) {
	c, err := s.Slice.LoadReference()
	if err != nil {
		return nil, err
	}
	return s.tree.Track(c), nil
}

// LoadReferenceCloned is an alias for LoadReference, matching Slice's own.
func (s *TrackedSlice) LoadReferenceCloned() (*TrackedCell, error) {
	return s.LoadReference()
}

// hashSetFilter adapts an UsageTree's visited set into a merkle.MerkleFilter
// without this package importing the merkle package (which itself depends
// on cell): it is a minimal predicate the merkle package's own filter
// constructors wrap, keyed only on ReprHash membership.
type hashSetFilter struct {
	tree *UsageTree
}

// Contains reports whether h was visited by the tracked traversal.
func (f hashSetFilter) Contains(h Hash) bool {
	return f.tree.Visited(h)
}

// ToPredicate returns a func(Hash) bool usable to build a
// merkle.MerkleFilter (via merkle.FromPredicate) that includes exactly the
// cells this tree recorded.
func (t *UsageTree) ToPredicate() func(Hash) bool {
	f := hashSetFilter{tree: t}
	return f.Contains
}
