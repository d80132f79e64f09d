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
	"fmt"
	"testing"

	"github.com/cockroachdb/skipscan/pkg/sql/catalog"
	"github.com/cockroachdb/skipscan/pkg/sql/memindex"
	"github.com/cockroachdb/skipscan/pkg/sql/opt"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
	"github.com/stretchr/testify/require"
)

// singleColTable builds a one-column table with one index over that column.
func singleColTable(
	tid catalog.TableID,
	sem catalog.SemanticType,
	dir catalog.Direction,
	nulls catalog.NullsOrder,
) *catalog.TableDescriptor {
	return &catalog.TableDescriptor{
		ID:   tid,
		Name: fmt.Sprintf("t%d", tid),
		Columns: []catalog.ColumnDescriptor{
			{ID: 1, Name: "v", Type: catalog.ColumnType{Semantic: sem}},
		},
		Indexes: []catalog.IndexDescriptor{{
			ID:      catalog.IndexID(tid),
			Name:    fmt.Sprintf("t%d_v_idx", tid),
			Columns: []catalog.IndexColumn{{Column: 1, Direction: dir, Nulls: nulls}},
		}},
	}
}

func buildIndex(
	t *testing.T, table *catalog.TableDescriptor, rows ...tree.Datums,
) *memindex.Index {
	t.Helper()
	ix, err := memindex.New(table, &table.Indexes[0])
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, ix.Insert(row))
	}
	return ix
}

func singleRows(vals ...tree.Datum) []tree.Datums {
	rows := make([]tree.Datums, len(vals))
	for i, v := range vals {
		rows[i] = tree.Datums{v}
	}
	return rows
}

func execCtxFor(ixs ...*memindex.Index) *ExecCtx {
	ec := &ExecCtx{Indexes: map[catalog.IndexID]*memindex.Index{}}
	for _, ix := range ixs {
		ec.Indexes[ix.Desc().ID] = ix
	}
	return ec
}

func pathKeyOn(col catalog.ColumnID) opt.PathKey {
	return opt.PathKey{EC: &opt.EquivalenceClass{Members: []opt.Scalar{opt.VarExpr{Col: col}}}}
}

func indexPathOver(table *catalog.TableDescriptor) *opt.IndexPath {
	return &opt.IndexPath{
		Table:    table,
		Index:    &table.Indexes[0],
		PathKeys: []opt.PathKey{pathKeyOn(table.Indexes[0].Columns[0].Column)},
		Cost:     1024,
	}
}

// planSkipScan runs the planner over a single-key dedup of the given index
// path and compiles the resulting skip scan plan.
func planSkipScan(t *testing.T, ip *opt.IndexPath) *opt.SkipScanPlan {
	t.Helper()
	up := &opt.UniquePath{NumKeys: 1, KeyCols: []int{0}, Sub: ip, Cost: 2048}
	rel := &opt.Rel{Paths: []opt.Path{up}}
	opt.AddSkipScanPaths(context.Background(), rel, opt.Config{EnableSkipScan: true})
	require.Len(t, rel.Paths, 2, "skip scan path was not added")
	plan, err := rel.Paths[1].Build()
	require.NoError(t, err)
	return plan.(*opt.SkipScanPlan)
}

// drain pulls the source dry, copying each row out of the source's reusable
// buffer.
func drain(t *testing.T, src RowSource) []tree.Datums {
	t.Helper()
	ctx := context.Background()
	var out []tree.Datums
	for {
		row, err := src.Next(ctx)
		require.NoError(t, err)
		if row == nil {
			return out
		}
		out = append(out, append(tree.Datums(nil), row...))
	}
}

func col0(rows []tree.Datums) []tree.Datum {
	out := make([]tree.Datum, len(rows))
	for i, row := range rows {
		out[i] = row[0]
	}
	return out
}
