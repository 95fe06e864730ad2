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

func TestHashSetFilterMembership(t *testing.T) {
	a := cell.Hash{1}
	b := cell.Hash{2}
	f := NewHashSetFilter(a)

	if got := f.Check(a); got != Include {
		t.Fatalf("Check(member) = %v, want Include", got)
	}
	if got := f.Check(b); got != Skip {
		t.Fatalf("Check(non-member) = %v, want Skip", got)
	}
}

func TestFromPredicate(t *testing.T) {
	a := cell.Hash{1}
	b := cell.Hash{2}
	f := FromPredicate(func(h cell.Hash) bool { return h == a })

	if got := f.Check(a); got != Include {
		t.Fatalf("Check(a) = %v, want Include", got)
	}
	if got := f.Check(b); got != Skip {
		t.Fatalf("Check(b) = %v, want Skip", got)
	}
}

func TestInvertSwapsSkipAndInclude(t *testing.T) {
	a := cell.Hash{1}
	b := cell.Hash{2}
	f := NewHashSetFilter(a)
	inv := Invert(f)

	if got := inv.Check(a); got != Skip {
		t.Fatalf("inverted Check(a) = %v, want Skip", got)
	}
	if got := inv.Check(b); got != Include {
		t.Fatalf("inverted Check(b) = %v, want Include", got)
	}
}

func TestInvertPassesIncludeSubtreeThrough(t *testing.T) {
	always := FilterFunc(func(cell.Hash) FilterAction { return IncludeSubtree })
	inv := Invert(always)
	if got := inv.Check(cell.Hash{9}); got != IncludeSubtree {
		t.Fatalf("inverted Check = %v, want IncludeSubtree unchanged", got)
	}
}

func TestFilterActionString(t *testing.T) {
	cases := map[FilterAction]string{
		Skip:           "Skip",
		Include:        "Include",
		IncludeSubtree: "IncludeSubtree",
		FilterAction(99): "Unknown",
	}
	for action, want := range cases {
		if got := action.String(); got != want {
			t.Fatalf("String() for %d = %q, want %q", int(action), got, want)
		}
	}
}
