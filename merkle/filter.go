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

// Package merkle implements the pruned-branch, Merkle-proof, and
// Merkle-update machinery layered on top of package cell: building a
// minimal subtree that proves or diffs a larger cell DAG, and
// reconstructing one tree from another plus such a diff.
package merkle

import "github.com/broxus-go/tvmcell/cell"

// FilterAction is the verdict a MerkleFilter returns for a cell hash
// during a proof or update traversal.
type FilterAction int

const (
	// Skip replaces the cell with a pruned branch (if it has at least
	// one reference) or leaves a leaf cell untouched (leaves carry no
	// children to prune).
	Skip FilterAction = iota
	// Include keeps the cell, recursing into its children.
	Include
	// IncludeSubtree keeps the cell and its entire subtree unchanged,
	// without recursing (and without memoizing children individually).
	IncludeSubtree
)

// String renders the action for logging.
func (a FilterAction) String() string {
	switch a {
	case Skip:
		return "Skip"
	case Include:
		return "Include"
	case IncludeSubtree:
		return "IncludeSubtree"
	default:
		return "Unknown"
	}
}

// MerkleFilter decides, per cell hash, how a proof or update traversal
// should treat that cell.
type MerkleFilter interface {
	Check(h cell.Hash) FilterAction
}

// FilterFunc adapts a plain function to a MerkleFilter.
type FilterFunc func(h cell.Hash) FilterAction

// Check implements MerkleFilter.
func (f FilterFunc) Check(h cell.Hash) FilterAction {
	return f(h)
}

// HashSetFilter is a MerkleFilter backed by a plain set of hashes: Include
// for members, Skip for everything else. This is the typical filter
// derived from a cell.UsageTree's recorded visits.
type HashSetFilter map[cell.Hash]struct{}

// NewHashSetFilter builds a HashSetFilter containing the given hashes.
func NewHashSetFilter(hashes ...cell.Hash) HashSetFilter {
	s := make(HashSetFilter, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Check implements MerkleFilter.
func (s HashSetFilter) Check(h cell.Hash) FilterAction {
	if _, ok := s[h]; ok {
		return Include
	}
	return Skip
}

// FromPredicate builds a MerkleFilter from a membership predicate, e.g.
// cell.UsageTree.ToPredicate's result: Include iff pred(h), else Skip.
func FromPredicate(pred func(cell.Hash) bool) MerkleFilter {
	return FilterFunc(func(h cell.Hash) FilterAction {
		if pred(h) {
			return Include
		}
		return Skip
	})
}

// invertedFilter swaps Skip and Include, leaving IncludeSubtree as-is. It
// is how the update builder turns "cells the new tree read from old" into
// "cells the new-side proof should prune because they came from old
// unchanged".
type invertedFilter struct {
	inner MerkleFilter
}

// Invert returns a MerkleFilter with Skip and Include swapped relative to
// f.
func Invert(f MerkleFilter) MerkleFilter {
	return invertedFilter{inner: f}
}

// Check implements MerkleFilter.
func (f invertedFilter) Check(h cell.Hash) FilterAction {
	switch f.inner.Check(h) {
	case Skip:
		return Include
	case Include:
		return Skip
	default:
		return IncludeSubtree
	}
}
