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

func TestLevelMaskLevel(t *testing.T) {
	cases := []struct {
		mask uint8
		want uint8
	}{
		{0b000, 0},
		{0b001, 1},
		{0b010, 1},
		{0b100, 1},
		{0b011, 2},
		{0b101, 2},
		{0b110, 2},
		{0b111, 3},
	}
	for _, tc := range cases {
		m := NewLevelMask(tc.mask)
		if got := m.Level(); got != tc.want {
			t.Errorf("NewLevelMask(%03b).Level() = %d, want %d", tc.mask, got, tc.want)
		}
	}
}

func TestLevelMaskHashIndex(t *testing.T) {
	m := NewLevelMask(0b101)
	cases := []struct {
		level uint8
		want  uint8
	}{
		{0, 0},
		{1, 1}, // bit 0 set
		{2, 1}, // bit 1 not set
		{3, 2}, // bit 2 set
	}
	for _, tc := range cases {
		if got := m.HashIndex(tc.level); got != tc.want {
			t.Errorf("HashIndex(%d) = %d, want %d", tc.level, got, tc.want)
		}
	}
}

func TestLevelMaskUnion(t *testing.T) {
	a := NewLevelMask(0b001)
	b := NewLevelMask(0b100)
	got := a.Union(b)
	if got.Byte() != 0b101 {
		t.Fatalf("Union = %03b, want 101", got.Byte())
	}
}

func TestLevelMaskVirtualize(t *testing.T) {
	m := NewLevelMask(0b111)
	if got := m.Virtualize(0); got.Byte() != 0b111 {
		t.Fatalf("Virtualize(0) = %03b, want 111", got.Byte())
	}
	if got := m.Virtualize(1); got.Byte() != 0b011 {
		t.Fatalf("Virtualize(1) = %03b, want 011", got.Byte())
	}
	if got := m.Virtualize(2); got.Byte() != 0b001 {
		t.Fatalf("Virtualize(2) = %03b, want 001", got.Byte())
	}
}

func TestLevelMaskIsSignificant(t *testing.T) {
	m := NewLevelMask(0b101)
	if !m.IsSignificant(0) {
		t.Error("level 0 must always be significant")
	}
	if !m.IsSignificant(1) {
		t.Error("bit 0 is set, level 1 should be significant")
	}
	if m.IsSignificant(2) {
		t.Error("bit 1 is not set, level 2 should not be significant")
	}
	if !m.IsSignificant(3) {
		t.Error("bit 2 is set, level 3 should be significant")
	}
}

func TestNewLevelMaskMasksExtraBits(t *testing.T) {
	m := NewLevelMask(0xFF)
	if m.Byte() != 0b111 {
		t.Fatalf("NewLevelMask(0xFF).Byte() = %03b, want 111", m.Byte())
	}
}
