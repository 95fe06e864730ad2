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

import "github.com/prometheus/client_golang/prometheus"

// Context is the collaborator threaded through Builder.BuildExt. It is
// consulted exactly once per finalized cell and may allocate, intern, rate
// limit, or simply count cells. This implementation keeps a single
// interface for both the "finalizer" and "observer" roles (see DESIGN.md's
// Open Question note): a Context that wants to veto a build returns an
// error from Finalize and BuildExt propagates it unchanged.
type Context interface {
	// Finalize is called with a fully hashed, fully typed Cell
	// immediately before BuildExt returns it. Implementations may return
	// a different *Cell (e.g. a deduplicated, previously interned one)
	// or an error to abort the build.
	Finalize(c *Cell) (*Cell, error)
}

// NoopContext is the default Context: it returns every cell unchanged and
// never fails.
type NoopContext struct{}

// Finalize implements Context.
func (NoopContext) Finalize(c *Cell) (*Cell, error) {
	return c, nil
}

// MetricsContext is a Context implementation backed by Prometheus counters:
// every Finalize call increments a counter keyed by cell type, giving
// callers a cheap way to monitor how much Merkle machinery (pruned
// branches, proofs, updates) a workload is producing.
type MetricsContext struct {
	built *prometheus.CounterVec
}

// NewMetricsContext registers (with the given registerer, or the default
// global registry if nil) and returns a MetricsContext.
func NewMetricsContext(reg prometheus.Registerer) *MetricsContext {
	built := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvmcell",
		Subsystem: "builder",
		Name:      "cells_built_total",
		Help:      "Number of cells finalized by Builder.BuildExt, labeled by cell type.",
	}, []string{"cell_type"})

	if reg != nil {
		reg.MustRegister(built)
	} else {
		prometheus.MustRegister(built)
	}

	return &MetricsContext{built: built}
}

// Finalize implements Context, recording one observation and passing the
// cell through unchanged.
func (m *MetricsContext) Finalize(c *Cell) (*Cell, error) {
	m.built.WithLabelValues(cellTypeLabel(c.CellType())).Inc()
	return c, nil
}

func cellTypeLabel(t CellType) string {
	switch t {
	case TypeOrdinary:
		return "ordinary"
	case TypePrunedBranch:
		return "pruned_branch"
	case TypeLibraryReference:
		return "library_reference"
	case TypeMerkleProof:
		return "merkle_proof"
	case TypeMerkleUpdate:
		return "merkle_update"
	default:
		return "unknown"
	}
}
