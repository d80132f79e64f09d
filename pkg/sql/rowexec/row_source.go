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

package rowexec

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/memindex"
	"github.com/cockroachdb/skipscan/pkg/sql/opt"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
)

// RowSource is a pull-based row operator.
//
// The row returned by Next is only valid until the following call to Next
// or Rescan; a caller that retains rows across calls must copy them.
type RowSource interface {
	// Start acquires the resources the operator needs and binds runtime
	// parameters. It must be called once before the first Next.
	Start(ctx context.Context) error

	// Next returns the next row, or nil with a nil error once the source is
	// exhausted. Calling Next after exhaustion keeps returning nil.
	Next(ctx context.Context) (tree.Datums, error)

	// Rescan restarts the source from the beginning, re-evaluating runtime
	// parameter bindings.
	Rescan(ctx context.Context) error

	// Close releases the operator's resources. It is idempotent.
	Close(ctx context.Context)
}

// ExecCtx carries the per-execution environment: the indexes available to
// scans and the values for runtime parameters.
type ExecCtx struct {
	Indexes map[catalog.IndexID]*memindex.Index
	Params  tree.Datums
}

// NewRowSource builds the operator tree for a compiled plan. The returned
// source has not been started.
func NewRowSource(execCtx *ExecCtx, plan opt.Plan) (RowSource, error) {
	switch p := plan.(type) {
	case *opt.IndexOnlyScanPlan:
		return newIndexScanNode(execCtx, &p.IndexScanPlan, true /* indexOnly */), nil
	case *opt.IndexScanPlan:
		return newIndexScanNode(execCtx, p, false /* indexOnly */), nil
	case *opt.SkipScanPlan:
		return newSkipScanNode(execCtx, p), nil
	case *opt.MergeAppendPlan:
		subs := make([]RowSource, len(p.Subs))
		for i, sub := range p.Subs {
			src, err := NewRowSource(execCtx, sub)
			if err != nil {
				return nil, err
			}
			subs[i] = src
		}
		return newMergeAppendNode(subs, p.Ordering), nil
	case *opt.UniquePlan:
		sub, err := NewRowSource(execCtx, p.Sub)
		if err != nil {
			return nil, err
		}
		return newUniqueNode(sub, p.KeyCols), nil
	default:
		return nil, errors.AssertionFailedf("unknown plan type %T", plan)
	}
}
