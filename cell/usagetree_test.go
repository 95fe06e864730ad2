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

import "testing"

func buildChain(t *testing.T) *Cell {
	t.Helper()
	leaf, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build leaf: %v", err)
	}
	mid := NewBuilder()
	_ = mid.StoreReference(leaf)
	midCell, err := mid.Build()
	if err != nil {
		t.Fatalf("Build mid: %v", err)
	}
	root := NewBuilder()
	_ = root.StoreReference(midCell)
	rootCell, err := root.Build()
	if err != nil {
		t.Fatalf("Build root: %v", err)
	}
	return rootCell
}

func TestUsageTreeOnLoadMarksOnTrack(t *testing.T) {
	root := buildChain(t)
	ut := NewUsageTree(UsageOnLoad)
	tracked := ut.Track(root)

	if !ut.Visited(root.ReprHash()) {
		t.Fatal("OnLoad mode should mark a cell visited as soon as it is tracked")
	}
	if ut.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ut.Len())
	}

	mid, err := tracked.Reference(0)
	if err != nil {
		t.Fatalf("Reference(0): %v", err)
	}
	if !ut.Visited(mid.Cell().ReprHash()) {
		t.Fatal("dereferencing a child in OnLoad mode should mark it visited")
	}
	if ut.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ut.Len())
	}
}

func TestUsageTreeOnDataAccessRequiresExplicitRead(t *testing.T) {
	root := buildChain(t)
	ut := NewUsageTree(UsageOnDataAccess)
	tracked := ut.Track(root)

	if ut.Visited(root.ReprHash()) {
		t.Fatal("OnDataAccess mode must not mark a cell visited merely by tracking it")
	}
	if _, err := tracked.AsSlice(); err != nil {
		t.Fatalf("AsSlice: %v", err)
	}
	if !ut.Visited(root.ReprHash()) {
		t.Fatal("OnDataAccess mode should mark a cell visited once its data is read")
	}
}

func TestUsageTreeOnDataAccessMarksOnReference(t *testing.T) {
	root := buildChain(t)
	ut := NewUsageTree(UsageOnDataAccess)
	tracked := ut.Track(root)

	if ut.Visited(root.ReprHash()) {
		t.Fatal("OnDataAccess mode must not mark a cell visited merely by tracking it")
	}
	if _, err := tracked.Reference(0); err != nil {
		t.Fatalf("Reference(0): %v", err)
	}
	if !ut.Visited(root.ReprHash()) {
		t.Fatal("OnDataAccess mode should mark the parent visited once a reference is extracted from it")
	}
}

func TestUsageTreeAsSliceLoadReferenceKeepsTracking(t *testing.T) {
	root := buildChain(t)
	ut := NewUsageTree(UsageOnLoad)
	tracked := ut.Track(root)

	slice, err := tracked.AsSlice()
	if err != nil {
		t.Fatalf("AsSlice: %v", err)
	}
	mid, err := slice.LoadReference()
	if err != nil {
		t.Fatalf("LoadReference: %v", err)
	}
	if !ut.Visited(mid.Cell().ReprHash()) {
		t.Fatal("loading a reference through AsSlice's returned slice should still mark it visited")
	}

	leaf, err := mid.Reference(0)
	if err != nil {
		t.Fatalf("mid.Reference(0): %v", err)
	}
	if !ut.Visited(leaf.Cell().ReprHash()) {
		t.Fatal("tracking must chain through AsSlice -> LoadReference -> Reference")
	}
}

func TestUsageTreeEachIsSortedAscending(t *testing.T) {
	ut := NewUsageTree(UsageOnLoad)
	root := buildChain(t)
	tracked := ut.Track(root)
	if _, err := tracked.Reference(0); err != nil {
		t.Fatalf("Reference(0): %v", err)
	}

	var seen []Hash
	ut.Each(func(h Hash) bool {
		seen = append(seen, h)
		return true
	})
	if len(seen) != 2 {
		t.Fatalf("Each visited %d hashes, want 2", len(seen))
	}
	if !hashLess(seen[0], seen[1]) && seen[0] != seen[1] {
		t.Fatalf("Each should report hashes in ascending order, got %s then %s", seen[0], seen[1])
	}
}

func TestUsageTreeToPredicate(t *testing.T) {
	root := buildChain(t)
	ut := NewUsageTree(UsageOnLoad)
	ut.Track(root)

	pred := ut.ToPredicate()
	if !pred(root.ReprHash()) {
		t.Fatal("predicate should report true for a visited hash")
	}
	if pred(EmptyHash) {
		t.Fatal("predicate should report false for an unvisited hash")
	}
}
