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

// A skip scan is an optimized form of SELECT DISTINCT ON (column):
// conceptually an ordinary index scan with an extra qual
//
//     WHERE column > [previous value of column]
//
// that is rebound after every returned row, so the scan jumps over runs of
// duplicates instead of reading them. Two things complicate that qual: the
// first time through there is no previous value, and NULLs do not
// participate in ordering comparisons, so a plain `column > prev` can
// neither find nor get past them. The node therefore runs a small state
// machine: fetch the first row without the skip qual at all, then advance
// with `column > prev`; when the scan runs dry, probe once with an IS NULL
// match if no NULL has been seen (the index may order NULLs last), or with
// an IS NOT NULL match if only NULLs have been seen (NULLs ordered first),
// and only then finish.

package rowexec

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/skipscan/pkg/sql/memindex"
	"github.com/cockroachdb/skipscan/pkg/sql/opt"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
	"github.com/cockroachdb/skipscan/pkg/util/log"
)

// scanMode is the phase of the skip scan state machine.
type scanMode int8

const (
	// modeSearchingForFirst is the initial phase: fetch one row with the
	// skip qual removed, since there is no previous value to skip past.
	modeSearchingForFirst scanMode = iota
	// modeSkippingAhead is the steady state: the skip qual is bound to the
	// previously returned value before each fetch.
	modeSkippingAhead
	// modeProbingForNull runs one sweep with the skip qual matching only
	// NULL, after the ordered scan ran dry without seeing a NULL.
	modeProbingForNull
	// modeProbingForVal runs one sweep with the skip qual matching only
	// non-NULL values, after the scan ran dry having seen nothing but NULL.
	modeProbingForVal
)

// SafeValue implements the redact.SafeValue interface.
func (m scanMode) SafeValue() {}

var _ redact.SafeValue = scanMode(0)

func (m scanMode) String() string {
	switch m {
	case modeSearchingForFirst:
		return "searching-for-first"
	case modeSkippingAhead:
		return "skipping-ahead"
	case modeProbingForNull:
		return "probing-for-null"
	case modeProbingForVal:
		return "probing-for-val"
	default:
		return "invalid"
	}
}

// prevDistinct holds the previously returned value of the distinct column.
// The NULL case is kept separate from the datum so that a NULL previous
// value is never fed to an ordering comparison by accident.
type prevDistinct struct {
	datum  tree.Datum
	isNull bool
}

func (p *prevDistinct) reset() {
	p.datum = nil
	p.isNull = true
}

// set records a non-NULL previous value. Values not passed by value share
// storage with the subscan's reused output row, so they are copied.
func (p *prevDistinct) set(d tree.Datum, byVal bool) {
	if !byVal {
		d = tree.DeepCopy(d)
	}
	p.datum = d
	p.isNull = false
}

func (p *prevDistinct) setNull() {
	p.datum = nil
	p.isNull = true
}

type skipScanNode struct {
	execCtx *ExecCtx
	plan    *opt.SkipScanPlan

	ix        *memindex.Index
	indexOnly bool
	reverse   bool

	// quals is the node's own clone of the subscan's qual list; the skip
	// qual is moved, removed and rebound in place here.
	quals   *scanqual.List
	scanner *memindex.Scanner

	distinctCol   int
	distinctByVal bool

	mode      scanMode
	foundNull bool
	foundVal  bool
	done      bool
	prev      prevDistinct

	// The skip qual starts at position 0 of the qual list but must sit with
	// the other quals on its index column; skipQualOffset is its position
	// after reordering. While removed, its value is saved in skipQual.
	skipQual        scanqual.Qual
	skipQualOffset  int
	skipQualRemoved bool
}

func newSkipScanNode(execCtx *ExecCtx, plan *opt.SkipScanPlan) *skipScanNode {
	return &skipScanNode{execCtx: execCtx, plan: plan}
}

func (n *skipScanNode) Start(ctx context.Context) error {
	var base *opt.IndexScanPlan
	switch sub := n.plan.Scan.(type) {
	case *opt.IndexOnlyScanPlan:
		base = &sub.IndexScanPlan
		n.indexOnly = true
	case *opt.IndexScanPlan:
		base = sub
	default:
		return errors.AssertionFailedf("unknown subscan type in skip scan: %T", n.plan.Scan)
	}

	// Order-by expressions on top of the index's native order are
	// unsupported out of conservatism; we do not know what work would be
	// required to reposition underneath them. The planner never builds such
	// a plan.
	if len(base.OrderBys) > 0 {
		return errors.AssertionFailedf("cannot skip scan with order-by keys")
	}

	ix, ok := n.execCtx.Indexes[base.Index.ID]
	if !ok {
		return errors.AssertionFailedf("index %d (%s) not available at execution time",
			base.Index.ID, base.Index.Name)
	}
	n.ix = ix
	n.reverse = base.Reverse
	n.distinctCol = n.plan.DistinctCol
	n.distinctByVal = n.plan.DistinctByVal

	n.quals = base.Quals.Clone()

	// The skip qual was spliced in at the front of the list so it is easy
	// to find, but quals must be grouped by index column.
	off, err := n.quals.FixupOrder(0)
	if err != nil {
		return err
	}
	n.skipQualOffset = off

	n.prev.reset()
	n.mode = modeSearchingForFirst
	n.foundNull = false
	n.foundVal = false
	n.done = false
	n.skipQualRemoved = false
	return nil
}

func (n *skipScanNode) Next(ctx context.Context) (tree.Datums, error) {
	if n.done {
		return nil, nil
	}
	for {
		if n.mode == modeSearchingForFirst {
			// The first fetch runs without the skip qual: there is no
			// previous value yet, and its placeholder bound would exclude
			// every row. The remaining quals still apply. The qual is put
			// back once there is a value to skip past.
			if err := n.removeSkipQual(); err != nil {
				return nil, err
			}
			if err := n.beginScan(ctx); err != nil {
				return nil, err
			}
		} else {
			// Subsequent fetches reposition past the value recorded by
			// updateSkipKey. If the skip qual was still removed, the scan is
			// restarted to pick up the restored qual list.
			readded, err := n.readdSkipQualIfNeeded()
			if err != nil {
				return nil, err
			}
			if readded {
				if err := n.beginScan(ctx); err != nil {
					return nil, err
				}
			}
			if err := n.populateSkipQual(); err != nil {
				return nil, err
			}
		}
		if err := n.scanner.Rescan(ctx); err != nil {
			return nil, err
		}

		row, err := n.scanner.Next(ctx)
		if err != nil {
			return nil, err
		}
		if row != nil {
			n.updateSkipKey(row)
			return row, nil
		}

		// The subscan ran out of rows; decide whether some value class may
		// still be unseen.
		if n.foundNull && n.foundVal {
			n.done = true
			return nil, nil
		}
		if n.finished() {
			n.done = true
			return nil, nil
		}

		// NULLs do not participate in ordering comparisons and can sort
		// either before or after the other values, so running dry does not
		// prove there is nothing left: having seen only NULLs, a non-NULL
		// value may still follow, and vice versa. Probe once for the
		// missing class.
		if !n.foundNull {
			n.mode = modeProbingForNull
		} else {
			n.mode = modeProbingForVal
		}
		log.VEventf(ctx, 2, "subscan exhausted, %s", n.mode)
		n.scanner.ClearReachedEnd()
	}
}

// finished reports that running dry means the scan is over:
//  1. Searching for the first row found nothing: the other quals exclude
//     everything.
//  2. The NULL probe found no NULL.
//  3. The non-NULL probe found no value.
func (n *skipScanNode) finished() bool {
	return (!n.foundNull && !n.foundVal) ||
		(n.mode == modeProbingForVal && !n.foundVal) ||
		(n.mode == modeProbingForNull && !n.foundNull)
}

// beginScan ends the previous scan, if any, and opens a new one. This runs
// whenever the qual list changes length: on the first fetch, and on the
// first fetch after the skip qual is restored.
func (n *skipScanNode) beginScan(ctx context.Context) error {
	if n.scanner != nil {
		n.scanner.Close(ctx)
	}
	var err error
	if n.indexOnly {
		n.scanner, err = n.ix.BeginIndexOnlyScan(ctx, n.quals, n.execCtx.Params, n.reverse)
	} else {
		n.scanner, err = n.ix.BeginScan(ctx, n.quals, n.execCtx.Params, n.reverse)
	}
	return err
}

// updateSkipKey records the distinct-column value of a row about to be
// returned, so the next fetch can skip past it.
func (n *skipScanNode) updateSkipKey(row tree.Datums) {
	d := row[n.distinctCol]
	if d == tree.DNull {
		n.prev.setNull()
		n.foundNull = true
	} else {
		n.prev.set(d, n.distinctByVal)
		n.foundVal = true
	}
	// If this was the first row, or a probe for a missing value class, the
	// search succeeded; fall back to the steady state.
	n.mode = modeSkippingAhead
}

func (n *skipScanNode) removeSkipQual() error {
	if n.skipQualRemoved {
		return errors.AssertionFailedf("skip qual already removed")
	}
	q, err := n.quals.Remove(n.skipQualOffset)
	if err != nil {
		return err
	}
	n.skipQual = q
	n.skipQualRemoved = true
	return nil
}

func (n *skipScanNode) readdSkipQualIfNeeded() (bool, error) {
	if !n.skipQualRemoved {
		return false, nil
	}
	n.skipQualRemoved = false
	if err := n.quals.Reinsert(n.skipQualOffset, n.skipQual); err != nil {
		return false, err
	}
	return true, nil
}

// populateSkipQual rebinds the skip qual for the next fetch.
func (n *skipScanNode) populateSkipQual() error {
	if n.skipQualRemoved {
		return errors.AssertionFailedf("populating a removed skip qual")
	}
	key := n.quals.Qual(n.skipQualOffset)
	switch {
	case n.mode == modeProbingForNull:
		key.SetMatchNull()
	case n.mode == modeProbingForVal:
		key.SetMatchNotNull()
	case n.prev.isNull:
		if n.foundNull {
			// Once a NULL has been returned we never need another; a NULL
			// bound satisfies no ordering comparison, which drives the scan
			// dry and lets the finish logic run.
			key.SetBound(tree.DNull)
		} else {
			key.SetMatchNull()
		}
	default:
		key.SetBound(n.prev.datum)
	}
	return nil
}

func (n *skipScanNode) Rescan(ctx context.Context) error {
	if n.scanner != nil {
		n.scanner.Close(ctx)
		n.scanner = nil
	}
	// If no row was ever found, which happens when a qual on a parameter
	// excludes everything, updateSkipKey never ran and the qual list is
	// still missing the skip qual. Restore it before restarting.
	if _, err := n.readdSkipQualIfNeeded(); err != nil {
		return err
	}
	n.prev.reset()
	n.mode = modeSearchingForFirst
	n.foundNull = false
	n.foundVal = false
	n.done = false
	return nil
}

func (n *skipScanNode) Close(ctx context.Context) {
	if n.scanner != nil {
		n.scanner.Close(ctx)
		n.scanner = nil
	}
}
