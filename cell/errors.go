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

import "fmt"

// ErrorKind is a closed set of failure modes used throughout the cell,
// slice, builder and Merkle packages. Every fallible operation returns one
// of these (or nil); nothing converts one kind into another implicitly, and
// no operation panics on malformed input.
type ErrorKind int

const (
	// ErrCellUnderflow means a read went past the end of a slice's bit or
	// reference range.
	ErrCellUnderflow ErrorKind = iota
	// ErrCellOverflow means a builder store exceeded the 1023-bit/4-ref
	// capacity of a cell.
	ErrCellOverflow
	// ErrInvalidCell means a cell's descriptor or exotic data layout
	// violates the schema (e.g. a malformed pruned branch).
	ErrInvalidCell
	// ErrInvalidData means a Merkle precondition or postcondition
	// mismatched (wrong old hash on apply, wrong new hash after apply).
	ErrInvalidData
	// ErrInvalidTag means an unknown enum discriminant was encountered
	// (e.g. an exotic cell type byte outside the known set).
	ErrInvalidTag
	// ErrEmptyProof means a Merkle filter excluded the proof root and the
	// builder was not configured to allow a different root.
	ErrEmptyProof
	// ErrCancelled means a Context aborted a build in progress.
	ErrCancelled
)

var errorKindNames = [...]string{
	ErrCellUnderflow: "cell underflow",
	ErrCellOverflow:  "cell overflow",
	ErrInvalidCell:   "invalid cell",
	ErrInvalidData:   "invalid data",
	ErrInvalidTag:    "invalid tag",
	ErrEmptyProof:    "empty proof",
	ErrCancelled:     "cancelled",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if int(k) < 0 || int(k) >= len(errorKindNames) {
		return "unknown error"
	}
	return errorKindNames[k]
}

// Error is a typed error carrying one ErrorKind plus optional free-form
// context. It implements the standard error interface so call sites can use
// errors.Is/errors.As against the Kind, while %v/%s output stays readable.
type Error struct {
	Kind ErrorKind
	// Msg, if non-empty, is appended to the kind's description, e.g.
	// "cell overflow: reference 5".
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is makes errors.Is(err, cell.ErrOf(kind)) work by comparing kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ErrOf constructs a bare *Error of the given kind, suitable as an
// errors.Is target or a direct return value.
func ErrOf(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

// Errf constructs an *Error of the given kind with formatted context.
func Errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
