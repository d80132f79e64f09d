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
	"github.com/cockroachdb/skipscan/pkg/sql/memindex"
	"github.com/cockroachdb/skipscan/pkg/sql/opt"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
)

// indexScanNode reads rows from an ordered index, filtered by the plan's
// qual list. The plan's quals are a template shared between executions, so
// the node works on its own clone.
type indexScanNode struct {
	execCtx   *ExecCtx
	plan      *opt.IndexScanPlan
	indexOnly bool

	ix      *memindex.Index
	quals   *scanqual.List
	scanner *memindex.Scanner
}

func newIndexScanNode(execCtx *ExecCtx, plan *opt.IndexScanPlan, indexOnly bool) *indexScanNode {
	return &indexScanNode{execCtx: execCtx, plan: plan, indexOnly: indexOnly}
}

func (n *indexScanNode) Start(ctx context.Context) error {
	ix, ok := n.execCtx.Indexes[n.plan.Index.ID]
	if !ok {
		return errors.AssertionFailedf("index %d (%s) not available at execution time",
			n.plan.Index.ID, n.plan.Index.Name)
	}
	n.ix = ix
	n.quals = n.plan.Quals.Clone()

	var err error
	if n.indexOnly {
		n.scanner, err = ix.BeginIndexOnlyScan(ctx, n.quals, n.execCtx.Params, n.plan.Reverse)
	} else {
		n.scanner, err = ix.BeginScan(ctx, n.quals, n.execCtx.Params, n.plan.Reverse)
	}
	if err != nil {
		return err
	}
	return n.scanner.Rescan(ctx)
}

func (n *indexScanNode) Next(ctx context.Context) (tree.Datums, error) {
	return n.scanner.Next(ctx)
}

func (n *indexScanNode) Rescan(ctx context.Context) error {
	n.scanner.ClearReachedEnd()
	return n.scanner.Rescan(ctx)
}

func (n *indexScanNode) Close(ctx context.Context) {
	if n.scanner != nil {
		n.scanner.Close(ctx)
	}
}
