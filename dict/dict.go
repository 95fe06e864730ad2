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

// Package dict is a minimal persistent map keyed by fixed-width bit
// strings, laid out as a binary trie of cells: one bit of key label per
// branch level, no Patricia-style multi-bit edge compression. It exists to
// give the merkle package's proof/update algorithms a realistic structure
// to diff, not to be a complete dictionary implementation.
package dict

import "github.com/broxus-go/tvmcell/cell"

const (
	hasLeftBit  = 1 << 7
	hasRightBit = 1 << 6
)

// Dict is a persistent map from fixed-width keys to cells. The zero value
// (via New) is the empty map; every Set returns a brand-new root, leaving
// any cell reachable from a prior root untouched, so callers can diff two
// versions with the merkle package.
type Dict struct {
	root    *cell.Cell
	keyBits int
	ctx     cell.Context
}

// New creates an empty dictionary over keys of the given bit width.
func New(keyBits int) *Dict {
	return NewExt(keyBits, cell.NoopContext{})
}

// NewExt is New with an explicit Context used to finalize every cell this
// Dict builds.
func NewExt(keyBits int, ctx cell.Context) *Dict {
	return &Dict{keyBits: keyBits, ctx: ctx}
}

// FromRoot wraps an existing root cell (e.g. one decoded from a BOC, or the
// result of applying a MerkleUpdate) as a Dict over the given key width.
func FromRoot(root *cell.Cell, keyBits int) *Dict {
	return &Dict{root: root, keyBits: keyBits}
}

// Root returns the dictionary's current root cell, or nil if it is empty.
func (d *Dict) Root() *cell.Cell { return d.root }

// KeyBits returns the fixed key width this Dict was created with.
func (d *Dict) KeyBits() int { return d.keyBits }

func keyBitAt(key uint64, keyBits, depth int) bool {
	return key&(1<<uint(keyBits-1-depth)) != 0
}

// Get looks up key, returning the stored value cell and true if present.
func (d *Dict) Get(key uint64) (*cell.Cell, bool, error) {
	node := d.root
	for depth := 0; depth < d.keyBits; depth++ {
		if node == nil {
			return nil, false, nil
		}
		data := node.Data()
		if len(data) < 1 {
			return nil, false, cell.Errf(cell.ErrInvalidData, "dict: malformed branch at depth %d", depth)
		}
		hasLeft := data[0]&hasLeftBit != 0
		hasRight := data[0]&hasRightBit != 0

		var idx int
		if !keyBitAt(key, d.keyBits, depth) {
			if !hasLeft {
				return nil, false, nil
			}
			idx = 0
		} else {
			if !hasRight {
				return nil, false, nil
			}
			idx = 0
			if hasLeft {
				idx = 1
			}
		}
		next, err := node.Reference(idx)
		if err != nil {
			return nil, false, err
		}
		node = next
	}
	return node, true, nil
}

// Set stores value under key, rebuilding only the path from the root to the
// new leaf; every subtree untouched by the change is reused by reference.
func (d *Dict) Set(key uint64, value *cell.Cell) error {
	newRoot, err := setRec(d.root, d.keyBits, 0, key, value, d.ctx)
	if err != nil {
		return err
	}
	d.root = newRoot
	return nil
}

func setRec(node *cell.Cell, keyBits, depth int, key uint64, value *cell.Cell, ctx cell.Context) (*cell.Cell, error) {
	if depth == keyBits {
		return value, nil
	}

	var left, right *cell.Cell
	hasLeft, hasRight := false, false
	if node != nil {
		data := node.Data()
		if len(data) < 1 {
			return nil, cell.Errf(cell.ErrInvalidData, "dict: malformed branch at depth %d", depth)
		}
		hasLeft = data[0]&hasLeftBit != 0
		hasRight = data[0]&hasRightBit != 0
		idx := 0
		if hasLeft {
			var err error
			if left, err = node.Reference(idx); err != nil {
				return nil, err
			}
			idx++
		}
		if hasRight {
			var err error
			if right, err = node.Reference(idx); err != nil {
				return nil, err
			}
		}
	}

	var err error
	if !keyBitAt(key, keyBits, depth) {
		left, err = setRec(left, keyBits, depth+1, key, value, ctx)
		hasLeft = true
	} else {
		right, err = setRec(right, keyBits, depth+1, key, value, ctx)
		hasRight = true
	}
	if err != nil {
		return nil, err
	}

	b := cell.NewBuilder()
	var tag byte
	if hasLeft {
		tag |= hasLeftBit
	}
	if hasRight {
		tag |= hasRightBit
	}
	if err := b.StoreUint8(tag); err != nil {
		return nil, err
	}
	if hasLeft {
		if err := b.StoreReference(left); err != nil {
			return nil, err
		}
	}
	if hasRight {
		if err := b.StoreReference(right); err != nil {
			return nil, err
		}
	}
	return b.BuildExt(ctx)
}
