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

package opt

import (
	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
)

// Plan is a compiled, executable plan fragment.
type Plan interface {
	// TargetList describes the node's output columns.
	TargetList() []TargetEntry
}

// IndexScanPlan scans an index in native order and returns full table rows.
type IndexScanPlan struct {
	Table   *catalog.TableDescriptor
	Index   *catalog.IndexDescriptor
	Reverse bool
	// Quals is the scan's qual list template. Executions clone it before
	// mutating.
	Quals        *scanqual.List
	OrderBys     []Scalar
	ParallelSafe bool

	targets []TargetEntry
}

// TargetList implements the Plan interface.
func (p *IndexScanPlan) TargetList() []TargetEntry { return p.targets }

// IndexOnlyScanPlan is an IndexScanPlan that returns only the index key
// columns, in index column order.
type IndexOnlyScanPlan struct {
	IndexScanPlan
}

// SkipScanPlan wraps an index scan plan whose qual list starts with a
// placeholder skip qual, and records the distinct-column descriptor the
// executor reads back: the column's ordinal in the scan's output rows, its
// by-value flag and its type length.
type SkipScanPlan struct {
	// Scan is the wrapped scan plan: an IndexScanPlan or IndexOnlyScanPlan.
	Scan Plan

	DistinctCol    int
	DistinctByVal  bool
	DistinctTypLen int

	// ParallelSafe is always false: skipping depends on the previous row,
	// which makes the scan inherently sequential.
	ParallelSafe bool
}

// TargetList implements the Plan interface.
func (p *SkipScanPlan) TargetList() []TargetEntry { return p.Scan.TargetList() }

// MergeAppendPlan merges the ordered outputs of its subplans.
type MergeAppendPlan struct {
	Subs     []Plan
	Ordering []ColumnOrder
}

// TargetList implements the Plan interface.
func (p *MergeAppendPlan) TargetList() []TargetEntry {
	if len(p.Subs) == 0 {
		return nil
	}
	return p.Subs[0].TargetList()
}

// UniquePlan emits one row per group of its ordered input's rows that share
// values for the key columns.
type UniquePlan struct {
	Sub     Plan
	KeyCols []int
}

// TargetList implements the Plan interface.
func (p *UniquePlan) TargetList() []TargetEntry { return p.Sub.TargetList() }
