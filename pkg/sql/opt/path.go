// Copyright 2021 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package opt holds the planner-side path and plan representation consumed
// by the skip scan planner: ordered index scan paths, deduplicating unique
// paths, merge-append fan-ins, and the plan nodes they compile into.
package opt

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
)

// Path is a candidate way of producing a relation's rows, carrying an
// estimated cost. Build compiles the path into an executable plan fragment.
type Path interface {
	TotalCost() float64
	Build() (Plan, error)
}

// ColumnOrder describes one column of a node's output ordering by its
// ordinal in the output row.
type ColumnOrder struct {
	ColIdx     int
	Desc       bool
	NullsFirst bool
}

// IndexPath is an ordered scan over a single index.
type IndexPath struct {
	Table *catalog.TableDescriptor
	Index *catalog.IndexDescriptor
	// IndexOnly scans return just the index key columns.
	IndexOnly bool
	// Reverse walks the index in backward direction.
	Reverse bool
	// PathKeys describe the output ordering; the first key is the one a
	// dedup path on top of this scan deduplicates on.
	PathKeys []PathKey
	// OrderBys are explicit order-by expressions layered on top of the
	// index's native order.
	OrderBys []Scalar
	Quals    []scanqual.Qual
	Binds    []scanqual.RuntimeBind
	Cost     float64
}

// TotalCost implements the Path interface.
func (p *IndexPath) TotalCost() float64 { return p.Cost }

// IndexTargetList returns the scan's output columns as seen by the index:
// one entry per index key column.
func (p *IndexPath) IndexTargetList() []TargetEntry {
	tlist := make([]TargetEntry, len(p.Index.Columns))
	for i, ic := range p.Index.Columns {
		tlist[i] = TargetEntry{Expr: VarExpr{Col: ic.Column}}
	}
	return tlist
}

// Build implements the Path interface.
func (p *IndexPath) Build() (Plan, error) {
	scan := IndexScanPlan{
		Table:        p.Table,
		Index:        p.Index,
		Reverse:      p.Reverse,
		Quals:        scanqual.NewList(p.Quals, p.Binds),
		OrderBys:     append([]Scalar(nil), p.OrderBys...),
		ParallelSafe: true,
	}
	if p.IndexOnly {
		scan.targets = p.IndexTargetList()
		return &IndexOnlyScanPlan{IndexScanPlan: scan}, nil
	}
	tlist := make([]TargetEntry, len(p.Table.Columns))
	for i := range p.Table.Columns {
		tlist[i] = TargetEntry{Expr: VarExpr{Col: p.Table.Columns[i].ID}}
	}
	scan.targets = tlist
	return &scan, nil
}

// UniquePath deduplicates the rows of its input on a prefix of the input's
// ordering keys.
type UniquePath struct {
	// NumKeys is the number of leading ordering keys deduplicated on.
	NumKeys int
	// KeyCols are the ordinals of those keys in the input's output rows.
	KeyCols []int
	Sub     Path
	Cost    float64
}

// TotalCost implements the Path interface.
func (p *UniquePath) TotalCost() float64 { return p.Cost }

// Build implements the Path interface.
func (p *UniquePath) Build() (Plan, error) {
	sub, err := p.Sub.Build()
	if err != nil {
		return nil, err
	}
	if len(p.KeyCols) < p.NumKeys {
		return nil, errors.AssertionFailedf(
			"unique path has %d key columns for %d keys", len(p.KeyCols), p.NumKeys)
	}
	return &UniquePlan{Sub: sub, KeyCols: append([]int(nil), p.KeyCols[:p.NumKeys]...)}, nil
}

// MergeAppendPath merges several ordered subpaths into a single ordered
// stream.
type MergeAppendPath struct {
	Subs     []Path
	PathKeys []PathKey
	// Ordering names the merge columns in the subpaths' output rows.
	Ordering     []ColumnOrder
	ParallelSafe bool
	Cost         float64
}

// TotalCost implements the Path interface.
func (p *MergeAppendPath) TotalCost() float64 { return p.Cost }

// Build implements the Path interface.
func (p *MergeAppendPath) Build() (Plan, error) {
	subs := make([]Plan, len(p.Subs))
	for i, sp := range p.Subs {
		sub, err := sp.Build()
		if err != nil {
			return nil, err
		}
		subs[i] = sub
	}
	return &MergeAppendPlan{Subs: subs, Ordering: append([]ColumnOrder(nil), p.Ordering...)}, nil
}

// Rel is a relation under planning: the set of candidate paths producing
// its output.
type Rel struct {
	Paths []Path
}

// AddPath registers an alternative path.
func (r *Rel) AddPath(p Path) {
	r.Paths = append(r.Paths, p)
}

// Cheapest returns the lowest-cost path, or nil if the relation has none.
func (r *Rel) Cheapest() Path {
	var best Path
	for _, p := range r.Paths {
		if best == nil || p.TotalCost() < best.TotalCost() {
			best = p
		}
	}
	return best
}
