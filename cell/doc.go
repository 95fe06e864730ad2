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

// Package cell implements the fundamental data structure of a TVM-family
// blockchain: an immutable, content-addressed DAG node carrying up to 1023
// data bits and up to 4 references to other cells.
//
// A Cell is built once, via a Builder, and never mutated afterwards. Reads
// go through a Slice, a non-owning cursor over a cell's bit and reference
// ranges. Every cell's representation hash is a SHA-256 digest over its
// canonical byte image, computed once at build time, so structurally equal
// trees always produce identical hashes (the Merkle property the rest of
// this module relies on).
package cell
