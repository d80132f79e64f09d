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

	"github.com/cockroachdb/skipscan/pkg/sql/opt"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
)

// mergeAppendNode merges the already-ordered outputs of its inputs into a
// single stream with the same ordering. Each input's head row is buffered;
// the buffered copy must be durable because an input may recycle its output
// row on the next fetch.
type mergeAppendNode struct {
	subs     []RowSource
	ordering []opt.ColumnOrder

	// heads[i] is the pending row from subs[i], nil once that input is
	// exhausted.
	heads []tree.Datums
}

func newMergeAppendNode(subs []RowSource, ordering []opt.ColumnOrder) *mergeAppendNode {
	return &mergeAppendNode{subs: subs, ordering: ordering}
}

func (n *mergeAppendNode) Start(ctx context.Context) error {
	n.heads = make([]tree.Datums, len(n.subs))
	for i, sub := range n.subs {
		if err := sub.Start(ctx); err != nil {
			return err
		}
		if err := n.fill(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// fill fetches the next row from input i into heads[i], copying it out of
// the input's reusable buffer.
func (n *mergeAppendNode) fill(ctx context.Context, i int) error {
	row, err := n.subs[i].Next(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		n.heads[i] = nil
		return nil
	}
	n.heads[i] = append(tree.Datums(nil), row...)
	return nil
}

func (n *mergeAppendNode) Next(ctx context.Context) (tree.Datums, error) {
	best := -1
	for i, head := range n.heads {
		if head == nil {
			continue
		}
		if best < 0 || n.compare(head, n.heads[best]) < 0 {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}
	row := n.heads[best]
	if err := n.fill(ctx, best); err != nil {
		return nil, err
	}
	return row, nil
}

func (n *mergeAppendNode) compare(a, b tree.Datums) int {
	for _, ord := range n.ordering {
		if c := tree.CompareOrdering(a[ord.ColIdx], b[ord.ColIdx], ord.Desc, ord.NullsFirst); c != 0 {
			return c
		}
	}
	return 0
}

func (n *mergeAppendNode) Rescan(ctx context.Context) error {
	for i, sub := range n.subs {
		if err := sub.Rescan(ctx); err != nil {
			return err
		}
		if err := n.fill(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (n *mergeAppendNode) Close(ctx context.Context) {
	for _, sub := range n.subs {
		sub.Close(ctx)
	}
}
