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

	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
)

// uniqueNode emits the first row of each group of adjacent rows with equal
// key columns. Its input must be ordered on the key columns; two NULL keys
// compare equal here, matching DISTINCT semantics.
type uniqueNode struct {
	sub     RowSource
	keyCols []int

	prevKey  tree.Datums
	havePrev bool
}

func newUniqueNode(sub RowSource, keyCols []int) *uniqueNode {
	return &uniqueNode{sub: sub, keyCols: keyCols}
}

func (n *uniqueNode) Start(ctx context.Context) error {
	n.prevKey = make(tree.Datums, len(n.keyCols))
	n.havePrev = false
	return n.sub.Start(ctx)
}

func (n *uniqueNode) Next(ctx context.Context) (tree.Datums, error) {
	for {
		row, err := n.sub.Next(ctx)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, nil
		}
		if n.havePrev && n.sameKey(row) {
			continue
		}
		// Datum values are immutable, so retaining the key elements is safe
		// even though the input recycles its row buffer.
		for i, col := range n.keyCols {
			n.prevKey[i] = row[col]
		}
		n.havePrev = true
		return row, nil
	}
}

func (n *uniqueNode) sameKey(row tree.Datums) bool {
	for i, col := range n.keyCols {
		a, b := n.prevKey[i], row[col]
		if a == tree.DNull || b == tree.DNull {
			if a != b {
				return false
			}
			continue
		}
		if a.Compare(b) != 0 {
			return false
		}
	}
	return true
}

func (n *uniqueNode) Rescan(ctx context.Context) error {
	n.havePrev = false
	return n.sub.Rescan(ctx)
}

func (n *uniqueNode) Close(ctx context.Context) {
	n.sub.Close(ctx)
}
