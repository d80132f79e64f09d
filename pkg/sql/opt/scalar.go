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
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
)

// Scalar is a planner-side scalar expression. Only the shapes the skip scan
// planner needs to inspect are represented: column references, constants,
// and no-op type relabelings wrapped around either.
type Scalar interface {
	scalar()
}

// VarExpr references a table column.
type VarExpr struct {
	Col catalog.ColumnID
}

func (VarExpr) scalar() {}

// ConstExpr is a constant value.
type ConstExpr struct {
	Val tree.Datum
}

func (ConstExpr) scalar() {}

// RelabelExpr is a binary-compatible type relabeling of its input. It has no
// effect on the value and is ignored when matching expressions.
type RelabelExpr struct {
	Input Scalar
}

func (RelabelExpr) scalar() {}

// StripRelabel peels any relabeling layers off s.
func StripRelabel(s Scalar) Scalar {
	for {
		r, ok := s.(RelabelExpr)
		if !ok {
			return s
		}
		s = r.Input
	}
}

func scalarsEqual(a, b Scalar) bool {
	a, b = StripRelabel(a), StripRelabel(b)
	switch at := a.(type) {
	case VarExpr:
		bt, ok := b.(VarExpr)
		return ok && at.Col == bt.Col
	case ConstExpr:
		bt, ok := b.(ConstExpr)
		return ok && at.Val != nil && bt.Val != nil && at.Val.Compare(bt.Val) == 0
	default:
		return false
	}
}

// TargetEntry is one output column of a scan or plan node.
type TargetEntry struct {
	Expr Scalar
	// SortGroupRef links the entry to an explicit ORDER BY item, or zero.
	SortGroupRef int
}

// EquivalenceClass is a set of expressions known to be interchangeable for
// ordering purposes.
type EquivalenceClass struct {
	Members []Scalar
	// Volatile is set when the class came from an explicit, non-reorderable
	// ORDER BY expression; such a class has exactly one member and must be
	// matched through SortRef.
	Volatile bool
	SortRef  int
}

// PathKey describes one column of a path's output ordering.
type PathKey struct {
	EC *EquivalenceClass
}

// FindColumnFromTargetList matches the given ordering key to an output
// column of the target list. For a volatile equivalence class the match goes
// through the sort reference to the exact ORDER BY target entry; otherwise
// any entry whose expression (after stripping relabelings) is a non-constant
// member of the class matches, first one wins. The boolean result is false
// when no entry matches, which callers treat as "cannot apply", not as an
// error.
func FindColumnFromTargetList(tlist []TargetEntry, pk PathKey) (int, bool) {
	ec := pk.EC
	if ec == nil {
		return -1, false
	}
	if ec.Volatile {
		if ec.SortRef == 0 {
			// A volatile class always originates from an ORDER BY item and
			// carries its reference; without one there is nothing to match.
			return -1, false
		}
		for i := range tlist {
			if tlist[i].SortGroupRef == ec.SortRef {
				return i, true
			}
		}
		return -1, false
	}
	for i := range tlist {
		for _, m := range ec.Members {
			if _, isConst := StripRelabel(m).(ConstExpr); isConst {
				// Ordering by a constant is meaningless; constant members
				// never participate in matching.
				continue
			}
			if scalarsEqual(m, tlist[i].Expr) {
				return i, true
			}
		}
	}
	return -1, false
}
