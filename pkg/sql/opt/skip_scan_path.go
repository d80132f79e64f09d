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
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
	"github.com/cockroachdb/skipscan/pkg/util/log"
)

// Config carries the planner knobs threaded into path generation.
type Config struct {
	EnableSkipScan bool
}

// SkipScanPath is an alternative to a single-key unique path over an
// ordered index scan: instead of scanning every row and deduplicating, the
// scan jumps past runs of duplicate key values using a re-seekable skip
// qual.
type SkipScanPath struct {
	Index *IndexPath

	// SkipQual is the placeholder qual used to skip past already-seen
	// values. Its bound is NULL, which no strict comparison satisfies; the
	// executor rebinds it to the previously returned value at run time. The
	// planner must not treat the placeholder's unsatisfiability as grounds
	// to prune other quals.
	SkipQual scanqual.Qual

	// DistinctIdxCol is the position of the distinct column among the index
	// key columns.
	DistinctIdxCol int
	DistinctByVal  bool
	DistinctTypLen int

	Cost float64
}

// TotalCost implements the Path interface.
func (p *SkipScanPath) TotalCost() float64 { return p.Cost }

// AddSkipScanPaths inspects the relation's unique paths and registers a
// skip scan alternative for each one the technique applies to: a dedup on a
// single key over either one ordered index scan or a merge-append of
// several. Inapplicable candidates are skipped silently; this never fails
// planning.
func AddSkipScanPaths(ctx context.Context, rel *Rel, cfg Config) {
	if !cfg.EnableSkipScan {
		return
	}
	pathlist := rel.Paths
	for _, path := range pathlist {
		unique, ok := path.(*UniquePath)
		if !ok {
			continue
		}

		// DISTINCT on more than one key is unsupported: it would decompose
		// into one skip subproblem per key prefix, which this design does
		// not attempt.
		if unique.NumKeys > 1 {
			continue
		}

		switch sub := unique.Sub.(type) {
		case *IndexPath:
			skipPath := createSkipScanPath(ctx, unique, sub, false /* forAppend */)
			if skipPath == nil {
				continue
			}
			skipPath.Cost = compressCost(unique.Cost)
			rel.AddPath(skipPath)
			log.VEventf(ctx, 2, "added skip scan path over index %q", sub.Index.Name)

		case *MergeAppendPath:
			canSkip := false
			newSubs := make([]Path, 0, len(sub.Subs))
			for _, branch := range sub.Subs {
				newSub := branch
				if indexPath, ok := branch.(*IndexPath); ok {
					if skipPath := createSkipScanPath(ctx, unique, indexPath, true /* forAppend */); skipPath != nil {
						newSub = skipPath
						canSkip = true
					}
				}
				newSubs = append(newSubs, newSub)
			}
			if !canSkip {
				continue
			}
			newMerge := &MergeAppendPath{
				Subs:         newSubs,
				PathKeys:     sub.PathKeys,
				Ordering:     sub.Ordering,
				ParallelSafe: false,
				Cost:         compressCost(sub.Cost),
			}
			rel.AddPath(&UniquePath{
				NumKeys: unique.NumKeys,
				KeyCols: unique.KeyCols,
				Sub:     newMerge,
				Cost:    compressCost(unique.Cost),
			})
			log.VEventf(ctx, 2, "added skip scan paths under a merge of %d branches", len(newSubs))
		}
	}
}

// createSkipScanPath validates that the skip technique applies to the given
// index path and builds the path descriptor, or returns nil when the
// candidate is ineligible.
func createSkipScanPath(
	ctx context.Context, unique *UniquePath, indexPath *IndexPath, forAppend bool,
) *SkipScanPath {
	// A skip scan repositions through ordering comparisons, so the index
	// must have a sort operator family.
	if !indexPath.Index.Orderable() {
		return nil
	}
	// Explicit order-by expressions on top of the index's native order are
	// unsupported; we do not know what work would be required to reposition
	// underneath them. Distinct scans do not normally produce such paths,
	// so flag the path we are passing up.
	if len(indexPath.OrderBys) > 0 {
		log.Warningf(ctx, "not considering index %q for a skip scan: it carries order-by expressions", indexPath.Index.Name)
		return nil
	}
	if len(indexPath.PathKeys) == 0 {
		return nil
	}

	idxCol, ok := FindColumnFromTargetList(indexPath.IndexTargetList(), indexPath.PathKeys[0])
	if !ok {
		return nil
	}

	tableCol := indexPath.Index.Columns[idxCol].Column
	if tableCol == 0 {
		// Expression key column; cannot use this index.
		return nil
	}
	column, ok := indexPath.Table.ColumnByID(tableCol)
	if !ok || !column.Type.Valid() {
		return nil
	}

	if !column.Type.Orderable() {
		// No ordering operator exists for the column's type.
		log.VEventf(ctx, 3, "no ordering operator for column %q (%s)", column.Name, column.Type.Semantic)
		return nil
	}

	// Find the strict ordering operator that skips past the previous value
	// in scan order.
	strategy := scanqual.Greater
	if indexPath.Index.Columns[idxCol].Direction == catalog.Descending {
		strategy = scanqual.Less
	}
	if indexPath.Reverse {
		strategy = strategy.Reversed()
	}

	cost := unique.Cost
	if forAppend {
		cost = indexPath.Cost
	}
	return &SkipScanPath{
		Index: indexPath,
		SkipQual: scanqual.Qual{
			ColIdx:   idxCol,
			Strategy: strategy,
			Arg:      tree.DNull,
		},
		DistinctIdxCol: idxCol,
		DistinctByVal:  column.Type.ByValue(),
		DistinctTypLen: column.Type.Length(),
		Cost:           cost,
	}
}

// Build implements the Path interface: it compiles the wrapped index scan,
// splices the placeholder skip qual in ahead of the scan's pre-existing
// quals, and records the distinct-column descriptor for the executor.
func (p *SkipScanPath) Build() (Plan, error) {
	scanPlan, err := p.Index.Build()
	if err != nil {
		return nil, err
	}
	var base *IndexScanPlan
	switch scan := scanPlan.(type) {
	case *IndexOnlyScanPlan:
		base = &scan.IndexScanPlan
	case *IndexScanPlan:
		base = scan
	default:
		return nil, errors.AssertionFailedf("bad subplan type for skip scan: %T", scanPlan)
	}
	if err := base.Quals.Reinsert(0, p.SkipQual); err != nil {
		return nil, err
	}
	base.ParallelSafe = false

	distinctCol, ok := FindColumnFromTargetList(scanPlan.TargetList(), p.Index.PathKeys[0])
	if !ok {
		return nil, errors.AssertionFailedf("distinct column not found in scan target list")
	}
	return &SkipScanPlan{
		Scan:           scanPlan,
		DistinctCol:    distinctCol,
		DistinctByVal:  p.DistinctByVal,
		DistinctTypLen: p.DistinctTypLen,
	}, nil
}

// compressCost stands in for a real skip scan cost model. The right
// estimate would scale the source path's cost by the fraction of distinct
// values, but distinct-count statistics are not plumbed through here, so
// the cost is a monotone compressive transform of the source cost.
// TODO: base this on a selectivity estimate from distinct-count statistics.
func compressCost(c float64) float64 {
	return math.Log2(c)
}
