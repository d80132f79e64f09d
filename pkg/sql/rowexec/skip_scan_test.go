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
	"testing"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/memindex"
	"github.com/cockroachdb/skipscan/pkg/sql/opt"
	"github.com/cockroachdb/skipscan/pkg/sql/scanqual"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
	"github.com/stretchr/testify/require"
)

func TestSkipScanDistinct(t *testing.T) {
	n := tree.DNull
	d := func(v int) tree.Datum { return tree.DInt(v) }

	testCases := []struct {
		name    string
		dir     catalog.Direction
		nulls   catalog.NullsOrder
		reverse bool
		input   []tree.Datum
		want    []tree.Datum
	}{
		{
			name: "dups-and-trailing-nulls",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			input: []tree.Datum{d(1), d(1), d(2), d(3), d(3), d(3), n, n},
			want:  []tree.Datum{d(1), d(2), d(3), n},
		},
		{
			name: "leading-nulls",
			dir:  catalog.Ascending, nulls: catalog.NullsFirst,
			input: []tree.Datum{n, n, d(1), d(1), d(2)},
			want:  []tree.Datum{n, d(1), d(2)},
		},
		{
			name: "reverse-direction",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			reverse: true,
			input:   []tree.Datum{d(1), d(1), d(2), d(3), n},
			want:    []tree.Datum{n, d(3), d(2), d(1)},
		},
		{
			name: "descending-index",
			dir:  catalog.Descending, nulls: catalog.NullsFirst,
			input: []tree.Datum{d(3), d(3), d(2), n},
			want:  []tree.Datum{n, d(3), d(2)},
		},
		{
			name: "empty-relation",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			want: []tree.Datum{},
		},
		{
			name: "all-null",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			input: []tree.Datum{n, n},
			want:  []tree.Datum{n},
		},
		{
			name: "all-same-value",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			input: []tree.Datum{d(5), d(5), d(5)},
			want:  []tree.Datum{d(5)},
		},
		{
			name: "no-nulls",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			input: []tree.Datum{d(1), d(2), d(2)},
			want:  []tree.Datum{d(1), d(2)},
		},
		{
			name: "single-row",
			dir:  catalog.Ascending, nulls: catalog.NullsLast,
			input: []tree.Datum{d(9)},
			want:  []tree.Datum{d(9)},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			table := singleColTable(1, catalog.Int, tc.dir, tc.nulls)
			ix := buildIndex(t, table, singleRows(tc.input...)...)
			ip := indexPathOver(table)
			ip.Reverse = tc.reverse
			plan := planSkipScan(t, ip)

			src, err := NewRowSource(execCtxFor(ix), plan)
			require.NoError(t, err)
			defer src.Close(ctx)
			require.NoError(t, src.Start(ctx))

			got := col0(drain(t, src))
			require.Equal(t, len(tc.want), len(got))
			for i := range tc.want {
				require.Equal(t, 0, tree.CompareOrdering(tc.want[i], got[i], false, false),
					"row %d: want %s, got %s", i, tc.want[i], got[i])
			}

			// Pulling past exhaustion stays exhausted.
			row, err := src.Next(ctx)
			require.NoError(t, err)
			require.Nil(t, row)
		})
	}
}

func TestSkipScanRescan(t *testing.T) {
	ctx := context.Background()
	table := singleColTable(1, catalog.Int, catalog.Ascending, catalog.NullsLast)
	ix := buildIndex(t, table, singleRows(
		tree.DInt(1), tree.DInt(1), tree.DInt(2), tree.DNull)...)
	plan := planSkipScan(t, indexPathOver(table))

	src, err := NewRowSource(execCtxFor(ix), plan)
	require.NoError(t, err)
	defer src.Close(ctx)
	require.NoError(t, src.Start(ctx))

	first := drain(t, src)
	require.NoError(t, src.Rescan(ctx))
	second := drain(t, src)
	require.Equal(t, first, second)
	require.NoError(t, src.Rescan(ctx))
	require.Equal(t, first, drain(t, src))
}

func TestSkipScanIndexOnly(t *testing.T) {
	ctx := context.Background()
	table := &catalog.TableDescriptor{
		ID:   1,
		Name: "t",
		Columns: []catalog.ColumnDescriptor{
			{ID: 1, Name: "a", Type: catalog.ColumnType{Semantic: catalog.Int}},
			{ID: 2, Name: "b", Type: catalog.ColumnType{Semantic: catalog.Int}},
		},
		Indexes: []catalog.IndexDescriptor{{
			ID:      1,
			Name:    "t_b_idx",
			Columns: []catalog.IndexColumn{{Column: 2}},
		}},
	}
	ix := buildIndex(t, table,
		tree.Datums{tree.DInt(10), tree.DInt(2)},
		tree.Datums{tree.DInt(20), tree.DInt(1)},
		tree.Datums{tree.DInt(30), tree.DInt(1)},
	)
	ip := indexPathOver(table)
	ip.IndexOnly = true
	ip.PathKeys = []opt.PathKey{pathKeyOn(2)}
	plan := planSkipScan(t, ip)
	require.Equal(t, 0, plan.DistinctCol)

	src, err := NewRowSource(execCtxFor(ix), plan)
	require.NoError(t, err)
	require.NoError(t, src.Start(ctx))

	rows := drain(t, src)
	require.Equal(t, []tree.Datums{{tree.DInt(1)}, {tree.DInt(2)}}, rows)

	src.Close(ctx)
	require.Equal(t, 0, ix.Pins(), "visibility buffer still pinned after close")
	src.Close(ctx)
	require.Equal(t, 0, ix.Pins())
}

// compositeFixture is a table (a, b) with an index on (a, b) and a
// parameter-bound qual a = $1.
func compositeFixture(t *testing.T) (*memindex.Index, *opt.IndexPath) {
	t.Helper()
	table := &catalog.TableDescriptor{
		ID:   1,
		Name: "t",
		Columns: []catalog.ColumnDescriptor{
			{ID: 1, Name: "a", Type: catalog.ColumnType{Semantic: catalog.Int}},
			{ID: 2, Name: "b", Type: catalog.ColumnType{Semantic: catalog.Int}},
		},
		Indexes: []catalog.IndexDescriptor{{
			ID:   1,
			Name: "t_a_b_idx",
			Columns: []catalog.IndexColumn{
				{Column: 1},
				{Column: 2},
			},
		}},
	}
	ix := buildIndex(t, table,
		tree.Datums{tree.DInt(1), tree.DInt(10)},
		tree.Datums{tree.DInt(1), tree.DInt(10)},
		tree.Datums{tree.DInt(1), tree.DInt(20)},
		tree.Datums{tree.DInt(2), tree.DInt(5)},
	)
	ip := &opt.IndexPath{
		Table:    table,
		Index:    &table.Indexes[0],
		PathKeys: []opt.PathKey{pathKeyOn(2)},
		Quals:    []scanqual.Qual{{ColIdx: 0, Strategy: scanqual.Equal, Arg: tree.DNull}},
		Binds:    []scanqual.RuntimeBind{{QualIdx: 0, ParamIdx: 0}},
		Cost:     1024,
	}
	return ix, ip
}

// Distinct on the second index column, with a runtime-bound equality on the
// first. The skip qual must be reordered behind the first-column qual, and
// the binding must keep pointing at that qual through every reorder.
func TestSkipScanSecondColumnWithBind(t *testing.T) {
	ctx := context.Background()
	ix, ip := compositeFixture(t)
	plan := planSkipScan(t, ip)
	require.Equal(t, 1, plan.DistinctCol)

	execCtx := execCtxFor(ix)
	execCtx.Params = tree.Datums{tree.DInt(1)}
	src, err := NewRowSource(execCtx, plan)
	require.NoError(t, err)
	defer src.Close(ctx)
	require.NoError(t, src.Start(ctx))

	require.Equal(t, []tree.Datums{
		{tree.DInt(1), tree.DInt(10)},
		{tree.DInt(1), tree.DInt(20)},
	}, drain(t, src))
}

// A parameter that excludes every row means the skip qual is never restored
// during the scan; a rescan with a new parameter must restore it first.
func TestSkipScanRescanAfterEmptyResult(t *testing.T) {
	ctx := context.Background()
	ix, ip := compositeFixture(t)
	plan := planSkipScan(t, ip)

	execCtx := execCtxFor(ix)
	execCtx.Params = tree.Datums{tree.DInt(7)}
	src, err := NewRowSource(execCtx, plan)
	require.NoError(t, err)
	defer src.Close(ctx)
	require.NoError(t, src.Start(ctx))
	require.Empty(t, drain(t, src))

	execCtx.Params = tree.Datums{tree.DInt(1)}
	require.NoError(t, src.Rescan(ctx))
	require.Equal(t, []tree.Datums{
		{tree.DInt(1), tree.DInt(10)},
		{tree.DInt(1), tree.DInt(20)},
	}, drain(t, src))
}

func TestSkipScanDecimalColumn(t *testing.T) {
	ctx := context.Background()
	table := singleColTable(1, catalog.Decimal, catalog.Ascending, catalog.NullsLast)
	ix := buildIndex(t, table, singleRows(
		tree.NewDDecimal("1.5"),
		tree.NewDDecimal("1.50"),
		tree.NewDDecimal("2.25"),
		tree.DNull)...)
	plan := planSkipScan(t, indexPathOver(table))
	require.False(t, plan.DistinctByVal)

	src, err := NewRowSource(execCtxFor(ix), plan)
	require.NoError(t, err)
	defer src.Close(ctx)
	require.NoError(t, src.Start(ctx))

	got := col0(drain(t, src))
	require.Len(t, got, 3)
	require.Equal(t, 0, got[0].Compare(tree.NewDDecimal("1.5")))
	require.Equal(t, 0, got[1].Compare(tree.NewDDecimal("2.25")))
	require.Equal(t, tree.DNull, got[2])
}

func TestSkipScanStringColumn(t *testing.T) {
	ctx := context.Background()
	table := singleColTable(1, catalog.String, catalog.Ascending, catalog.NullsLast)
	ix := buildIndex(t, table, singleRows(
		tree.DString("a"), tree.DString("a"), tree.DString("b"), tree.DString("c"),
		tree.DString("c"))...)
	plan := planSkipScan(t, indexPathOver(table))

	src, err := NewRowSource(execCtxFor(ix), plan)
	require.NoError(t, err)
	defer src.Close(ctx)
	require.NoError(t, src.Start(ctx))
	require.Equal(t,
		[]tree.Datum{tree.DString("a"), tree.DString("b"), tree.DString("c")},
		col0(drain(t, src)))
}

// The skip scan must produce exactly what a dedup over the full scan
// produces.
func TestSkipScanMatchesUniqueScan(t *testing.T) {
	ctx := context.Background()
	vals := []tree.Datum{
		tree.DInt(5), tree.DInt(1), tree.DNull, tree.DInt(3), tree.DInt(3),
		tree.DInt(1), tree.DInt(2), tree.DNull, tree.DInt(5), tree.DInt(4),
	}
	table := singleColTable(1, catalog.Int, catalog.Ascending, catalog.NullsLast)
	ix := buildIndex(t, table, singleRows(vals...)...)

	skipPlan := planSkipScan(t, indexPathOver(table))
	skipSrc, err := NewRowSource(execCtxFor(ix), skipPlan)
	require.NoError(t, err)
	defer skipSrc.Close(ctx)
	require.NoError(t, skipSrc.Start(ctx))

	up := &opt.UniquePath{NumKeys: 1, KeyCols: []int{0}, Sub: indexPathOver(table), Cost: 2048}
	uniquePlan, err := up.Build()
	require.NoError(t, err)
	uniqueSrc, err := NewRowSource(execCtxFor(ix), uniquePlan)
	require.NoError(t, err)
	defer uniqueSrc.Close(ctx)
	require.NoError(t, uniqueSrc.Start(ctx))

	require.Equal(t, drain(t, uniqueSrc), drain(t, skipSrc))
}

func TestSkipScanBadSubplan(t *testing.T) {
	ctx := context.Background()
	table := singleColTable(1, catalog.Int, catalog.Ascending, catalog.NullsLast)
	ix := buildIndex(t, table)
	scanPlan, err := indexPathOver(table).Build()
	require.NoError(t, err)

	plan := &opt.SkipScanPlan{Scan: &opt.UniquePlan{Sub: scanPlan, KeyCols: []int{0}}}
	src, err := NewRowSource(execCtxFor(ix), plan)
	require.NoError(t, err)
	err = src.Start(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown subscan type")
}

func TestSkipScanRejectsOrderByKeys(t *testing.T) {
	ctx := context.Background()
	table := singleColTable(1, catalog.Int, catalog.Ascending, catalog.NullsLast)
	ix := buildIndex(t, table)
	ip := indexPathOver(table)
	ip.OrderBys = []opt.Scalar{opt.VarExpr{Col: 1}}
	scanPlan, err := ip.Build()
	require.NoError(t, err)

	src, err := NewRowSource(execCtxFor(ix), &opt.SkipScanPlan{Scan: scanPlan})
	require.NoError(t, err)
	err = src.Start(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "order-by keys")
}

func TestSkipScanMissingIndex(t *testing.T) {
	ctx := context.Background()
	table := singleColTable(1, catalog.Int, catalog.Ascending, catalog.NullsLast)
	plan := planSkipScan(t, indexPathOver(table))
	src, err := NewRowSource(&ExecCtx{Indexes: map[catalog.IndexID]*memindex.Index{}}, plan)
	require.NoError(t, err)
	require.Error(t, src.Start(ctx))
}

// The scan phase carries no user data and may be logged verbatim.
func TestScanModeRendersWithoutRedaction(t *testing.T) {
	require.Equal(t, redact.RedactableString("probing-for-null"), redact.Sprint(modeProbingForNull))
}
