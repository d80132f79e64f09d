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

// Package memindex provides an in-memory ordered index and the scan
// operator the executor drives: begin, reposition, fetch, end, with an
// explicitly clearable exhaustion flag. Rows are kept in the key order the
// index descriptor declares, including per-column NULLS FIRST / NULLS LAST
// placement, so a scan returns rows in native index order.
package memindex

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
	"github.com/google/btree"
)

const btreeDegree = 16

// Index is an ordered in-memory index over a table's rows.
type Index struct {
	table *catalog.TableDescriptor
	desc  *catalog.IndexDescriptor
	tr    *btree.BTree
	seq   int

	// ords maps index column positions to table row ordinals.
	ords []int

	// pins counts outstanding visibility buffers handed to index-only scans.
	pins int
}

type rowItem struct {
	ix  *Index
	row tree.Datums
	seq int
}

// Less implements the btree.Item interface.
func (a rowItem) Less(than btree.Item) bool {
	b := than.(rowItem)
	if c := a.ix.compareRows(a.row, b.row); c != 0 {
		return c < 0
	}
	// Duplicate keys are kept in insertion order.
	return a.seq < b.seq
}

// New creates an empty index over the given table. Every key column must be
// backed by a stored table column; expression key columns are not supported
// by the in-memory representation.
func New(table *catalog.TableDescriptor, desc *catalog.IndexDescriptor) (*Index, error) {
	ords := make([]int, len(desc.Columns))
	for i, ic := range desc.Columns {
		ord := table.ColumnOrdinal(ic.Column)
		if ord < 0 {
			return nil, errors.Newf(
				"index %q key column %d is not a stored column of table %q", desc.Name, i, table.Name)
		}
		ords[i] = ord
	}
	return &Index{
		table: table,
		desc:  desc,
		tr:    btree.New(btreeDegree),
		ords:  ords,
	}, nil
}

// Desc returns the index descriptor.
func (ix *Index) Desc() *catalog.IndexDescriptor { return ix.desc }

// Table returns the descriptor of the indexed table.
func (ix *Index) Table() *catalog.TableDescriptor { return ix.table }

// Len returns the number of indexed rows.
func (ix *Index) Len() int { return ix.tr.Len() }

// Pins returns the number of visibility buffers not yet released.
func (ix *Index) Pins() int { return ix.pins }

// Insert adds a row to the index. The row must be a full table row.
func (ix *Index) Insert(row tree.Datums) error {
	if len(row) != len(ix.table.Columns) {
		return errors.Newf("row has %d values, table %q has %d columns",
			len(row), ix.table.Name, len(ix.table.Columns))
	}
	ix.seq++
	ix.tr.ReplaceOrInsert(rowItem{ix: ix, row: row, seq: ix.seq})
	return nil
}

func (ix *Index) compareRows(a, b tree.Datums) int {
	for i, ic := range ix.desc.Columns {
		ord := ix.ords[i]
		desc := ic.Direction == catalog.Descending
		nullsFirst := ic.Nulls == catalog.NullsFirst
		if c := tree.CompareOrdering(a[ord], b[ord], desc, nullsFirst); c != 0 {
			return c
		}
	}
	return 0
}

// VisBuffer is the visibility buffer pinned by an index-only scan. It must
// be released exactly once; releasing it again is a no-op.
type VisBuffer struct {
	ix       *Index
	released bool
}

// Release unpins the buffer.
func (b *VisBuffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	b.ix.pins--
}

// Scanner is an in-progress ordered scan over an index. It is owned by a
// single execution context; none of its methods may be called concurrently.
type Scanner struct {
	ix        *Index
	quals     *scanqual.List
	params    tree.Datums
	reverse   bool
	indexOnly bool

	// rows is the ordered snapshot the scan iterates over, captured when the
	// scan begins.
	rows []tree.Datums
	pos  int

	// reachedEnd is set when the scan runs out of rows and is sticky across
	// repositioning: fetches return nothing until the caller clears it.
	reachedEnd bool

	// rowBuf is reused for every fetched row. A caller that retains a value
	// across repositioning must take its own copy.
	rowBuf tree.Datums

	vis    *VisBuffer
	closed bool
}

// BeginScan opens an ordered scan over the index. The scan evaluates the
// given qual list against each row; params supplies values for the list's
// runtime bindings. The caller must Close the scanner.
func (ix *Index) BeginScan(
	ctx context.Context, quals *scanqual.List, params tree.Datums, reverse bool,
) (*Scanner, error) {
	return ix.beginScan(ctx, quals, params, reverse, false /* indexOnly */)
}

// BeginIndexOnlyScan is like BeginScan but returns only the index key
// columns, in index column order, and pins a visibility buffer that is
// released when the scanner is closed.
func (ix *Index) BeginIndexOnlyScan(
	ctx context.Context, quals *scanqual.List, params tree.Datums, reverse bool,
) (*Scanner, error) {
	return ix.beginScan(ctx, quals, params, reverse, true /* indexOnly */)
}

func (ix *Index) beginScan(
	ctx context.Context, quals *scanqual.List, params tree.Datums, reverse, indexOnly bool,
) (*Scanner, error) {
	for _, q := range quals.Quals() {
		if q.ColIdx < 0 || q.ColIdx >= len(ix.desc.Columns) {
			return nil, errors.AssertionFailedf(
				"qual references index column %d of %d", q.ColIdx, len(ix.desc.Columns))
		}
	}
	// Snapshot the index contents in key order; the scan is insulated from
	// later inserts.
	rows := make([]tree.Datums, 0, ix.tr.Len())
	ix.tr.Ascend(func(it btree.Item) bool {
		rows = append(rows, it.(rowItem).row)
		return true
	})
	s := &Scanner{
		ix:        ix,
		quals:     quals,
		params:    params,
		reverse:   reverse,
		indexOnly: indexOnly,
		rows:      rows,
	}
	if indexOnly {
		ix.pins++
		s.vis = &VisBuffer{ix: ix}
	}
	return s, nil
}

// Rescan repositions the scan to the beginning of the index, re-evaluating
// the runtime bindings against the current qual list. It does not clear the
// exhaustion flag; a caller that wants another sweep after the scan ran dry
// clears it explicitly.
func (s *Scanner) Rescan(ctx context.Context) error {
	if s.closed {
		return errors.AssertionFailedf("rescan of a closed scanner")
	}
	if err := s.quals.EvalBinds(s.params); err != nil {
		return err
	}
	s.pos = 0
	return nil
}

// ReachedEnd reports whether the scan has run out of rows.
func (s *Scanner) ReachedEnd() bool { return s.reachedEnd }

// ClearReachedEnd makes the scan fetchable again after it ran dry.
func (s *Scanner) ClearReachedEnd() { s.reachedEnd = false }

// Next fetches the next row satisfying the quals, or nil when the scan is
// exhausted. The returned slice is reused by the following fetch.
func (s *Scanner) Next(ctx context.Context) (tree.Datums, error) {
	if s.closed {
		return nil, errors.AssertionFailedf("fetch from a closed scanner")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.reachedEnd {
		return nil, nil
	}
	quals := s.quals.Quals()
	for s.pos < len(s.rows) {
		row := s.rows[s.pos]
		if s.reverse {
			row = s.rows[len(s.rows)-1-s.pos]
		}
		s.pos++
		if s.matches(quals, row) {
			return s.project(row), nil
		}
	}
	s.reachedEnd = true
	return nil, nil
}

func (s *Scanner) matches(quals []scanqual.Qual, row tree.Datums) bool {
	for i := range quals {
		q := &quals[i]
		if !q.Matches(row[s.ix.ords[q.ColIdx]]) {
			return false
		}
	}
	return true
}

func (s *Scanner) project(row tree.Datums) tree.Datums {
	s.rowBuf = s.rowBuf[:0]
	if s.indexOnly {
		for _, ord := range s.ix.ords {
			s.rowBuf = append(s.rowBuf, row[ord])
		}
	} else {
		s.rowBuf = append(s.rowBuf, row...)
	}
	return s.rowBuf
}

// Close ends the scan, releasing the visibility buffer if one is held.
// Closing an already-closed scanner is a no-op.
func (s *Scanner) Close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	s.vis.Release()
	s.vis = nil
	s.rows = nil
}
