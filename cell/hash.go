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
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the length in bytes of a Hash.
const HashSize = 32

// Hash is an immutable 256-bit representation hash. Equality and use as a
// map key are byte-wise.
type Hash [HashSize]byte

// EmptyHash is the zero value, used for the (degenerate) empty cell before
// it has been hashed, and as a sentinel in a few default-value contexts.
var EmptyHash Hash

// String renders the hash as lowercase hex, the convention used when
// logging binary IDs via %x.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the hash as a newly allocated byte slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes copies b (which must be exactly HashSize long) into a Hash.
// It returns ErrInvalidCell if b has the wrong length.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, Errf(ErrInvalidCell, "hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// sum256 computes the SHA-256 digest of a cell's canonical byte image:
// descriptor bytes, data bytes (with completion bit), then per-reference
// depths (big-endian u16) followed by per-reference hashes, both at the
// level appropriate to the child.
func sum256(image []byte) Hash {
	return Hash(sha256.Sum256(image))
}
