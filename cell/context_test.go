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
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
)

func TestNoopContextReturnsCellUnchanged(t *testing.T) {
	c, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := NoopContext{}.Finalize(c)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got != c {
		t.Fatal("NoopContext.Finalize must return the same pointer")
	}
}

func TestBuildExtCallsContextExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mock := NewMockContext(ctrl)
	mock.EXPECT().Finalize(gomock.Any()).DoAndReturn(func(c *Cell) (*Cell, error) {
		return c, nil
	}).Times(1)

	b := NewBuilder()
	_ = b.StoreBitOne()
	if _, err := b.BuildExt(mock); err != nil {
		t.Fatalf("BuildExt: %v", err)
	}
}

func TestBuildExtPropagatesContextError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sentinel := ErrOf(ErrCancelled)
	mock := NewMockContext(ctrl)
	mock.EXPECT().Finalize(gomock.Any()).Return((*Cell)(nil), sentinel)

	b := NewBuilder()
	if _, err := b.BuildExt(mock); err != sentinel {
		t.Fatalf("BuildExt error = %v, want %v", err, sentinel)
	}
}

func TestBuildExtUsesContextsReplacementCell(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	replacement, err := NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build replacement: %v", err)
	}

	mock := NewMockContext(ctrl)
	mock.EXPECT().Finalize(gomock.Any()).Return(replacement, nil)

	b := NewBuilder()
	_ = b.StoreBitOne()
	got, err := b.BuildExt(mock)
	if err != nil {
		t.Fatalf("BuildExt: %v", err)
	}
	if got != replacement {
		t.Fatal("BuildExt must return whatever the Context's Finalize returns")
	}
}

func TestMetricsContextCountsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsContext(reg)

	b := NewBuilder()
	_ = b.StoreBitOne()
	if _, err := b.BuildExt(mc); err != nil {
		t.Fatalf("BuildExt: %v", err)
	}

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found, counted bool
	for _, mf := range metrics {
		if mf.GetName() == "tvmcell_builder_cells_built_total" {
			found = true
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "cell_type" && lp.GetValue() == "ordinary" && m.GetCounter().GetValue() == 1 {
						counted = true
					}
				}
			}
		}
	}
	if !found {
		t.Fatal("expected tvmcell_builder_cells_built_total to be registered")
	}
	if !counted {
		t.Fatal("expected one cell counted under cell_type=\"ordinary\"")
	}
}
