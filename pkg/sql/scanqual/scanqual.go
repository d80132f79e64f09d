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

// Package scanqual implements the qual list applied to an ordered index
// scan. The list owns its storage and maintains two invariants across every
// mutation:
//
//  1. quals are sorted by the index column they constrain, with at most one
//     distinguished "skip qual" allowed to sit first among the quals on its
//     column, and
//  2. runtime parameter bindings always reference quals by their current
//     position in the list; every insert, removal or relocation adjusts
//     affected bindings by the same shift, at the mutation site.
//
// Invariant 2 deliberately departs from representing bindings as raw
// pointers into the qual array: a binding is never stale, even while the
// skip qual is temporarily absent.
package scanqual

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/skipscan/pkg/sql/sem/tree"
)

// Strategy is a btree comparison strategy number.
type Strategy int8

// Strategy values, numbered the way btree operator classes number them.
const (
	Less Strategy = iota + 1
	LessOrEqual
	Equal
	GreaterOrEqual
	Greater
)

// SafeValue implements the redact.SafeValue interface.
func (Strategy) SafeValue() {}

var _ redact.SafeValue = Strategy(0)

func (s Strategy) String() string {
	switch s {
	case Less:
		return "<"
	case LessOrEqual:
		return "<="
	case Equal:
		return "="
	case GreaterOrEqual:
		return ">="
	case Greater:
		return ">"
	default:
		return fmt.Sprintf("strategy(%d)", int8(s))
	}
}

// Reversed returns the strategy that matches the same rows when the scan
// direction is inverted.
func (s Strategy) Reversed() Strategy {
	switch s {
	case Less:
		return Greater
	case LessOrEqual:
		return GreaterOrEqual
	case GreaterOrEqual:
		return LessOrEqual
	case Greater:
		return Less
	default:
		return s
	}
}

// Qual is a single scan predicate of the form "column <strategy> arg",
// optionally overridden to match only NULL or only non-NULL key values.
//
// An ordinary comparison against a NULL argument, or against a NULL row
// value, never matches: strict ordering comparisons do not admit NULL on
// either side. The planner relies on this to make its placeholder
// "column > NULL" qual unsatisfiable.
type Qual struct {
	// ColIdx is the ordinal of the index column the qual constrains.
	ColIdx   int
	Strategy Strategy
	Arg      tree.Datum

	// MatchNull restricts the scan to NULL key values; the argument is
	// ignored. MatchNotNull is the symmetric restriction to non-NULL values.
	// At most one of the two is set.
	MatchNull    bool
	MatchNotNull bool
}

// Matches reports whether the key value v satisfies the qual.
func (q *Qual) Matches(v tree.Datum) bool {
	if q.MatchNull {
		return v == tree.DNull
	}
	if q.MatchNotNull {
		return v != tree.DNull
	}
	if v == tree.DNull || q.Arg == tree.DNull {
		return false
	}
	c := v.Compare(q.Arg)
	switch q.Strategy {
	case Less:
		return c < 0
	case LessOrEqual:
		return c <= 0
	case Equal:
		return c == 0
	case GreaterOrEqual:
		return c >= 0
	case Greater:
		return c > 0
	default:
		return false
	}
}

// SetMatchNull rebinds the qual to match NULL key values only.
func (q *Qual) SetMatchNull() {
	q.MatchNull = true
	q.MatchNotNull = false
	q.Arg = tree.DNull
}

// SetMatchNotNull rebinds the qual to match non-NULL key values only.
func (q *Qual) SetMatchNotNull() {
	q.MatchNull = false
	q.MatchNotNull = true
	q.Arg = tree.DNull
}

// SetBound rebinds the qual to an ordinary comparison against arg. A NULL
// arg makes the qual unsatisfiable.
func (q *Qual) SetBound(arg tree.Datum) {
	q.MatchNull = false
	q.MatchNotNull = false
	q.Arg = arg
}

// RuntimeBind populates a qual's argument from a query parameter when the
// scan is (re)positioned. The qual is referenced by its position in the
// list.
type RuntimeBind struct {
	QualIdx  int
	ParamIdx int
}

// List is the ordered qual list applied to a scan.
type List struct {
	quals []Qual
	binds []RuntimeBind
}

// NewList builds a List from the given quals and bindings. The slices are
// copied; the caller's storage is not retained.
func NewList(quals []Qual, binds []RuntimeBind) *List {
	l := &List{
		quals: append([]Qual(nil), quals...),
		binds: append([]RuntimeBind(nil), binds...),
	}
	return l
}

// Clone returns a deep copy of the list. Plans hold a shared template list;
// each execution mutates its own clone.
func (l *List) Clone() *List {
	return NewList(l.quals, l.binds)
}

// Len returns the number of quals in the list.
func (l *List) Len() int { return len(l.quals) }

// Qual returns the qual at position i. The pointer is invalidated by the
// next list mutation.
func (l *List) Qual(i int) *Qual { return &l.quals[i] }

// Quals returns the current quals for evaluation. The slice is invalidated
// by the next list mutation.
func (l *List) Quals() []Qual { return l.quals }

// Remove detaches the qual at position i, compacting the remaining quals
// leftward, and returns it. Bindings referencing later positions shift left
// with their quals. Removing from an empty list means the planner and the
// executor disagree about the plan shape and is reported as a fatal error.
func (l *List) Remove(i int) (Qual, error) {
	if len(l.quals) == 0 {
		return Qual{}, errors.AssertionFailedf("removing qual from an empty list")
	}
	if i < 0 || i >= len(l.quals) {
		return Qual{}, errors.AssertionFailedf("qual index %d out of range [0,%d)", i, len(l.quals))
	}
	q := l.quals[i]
	copy(l.quals[i:], l.quals[i+1:])
	l.quals = l.quals[:len(l.quals)-1]
	for bi := range l.binds {
		b := &l.binds[bi]
		if b.QualIdx == i {
			return Qual{}, errors.AssertionFailedf(
				"removed qual at position %d still referenced by a runtime binding", i)
		}
		if b.QualIdx > i {
			b.QualIdx--
		}
	}
	return q, nil
}

// Reinsert is the inverse of Remove: quals at or after position i shift one
// slot rightward and q is written into slot i. Bindings within the shifted
// range are adjusted by the same one-slot shift, here and only here.
func (l *List) Reinsert(i int, q Qual) error {
	if i < 0 || i > len(l.quals) {
		return errors.AssertionFailedf("qual index %d out of range [0,%d]", i, len(l.quals))
	}
	l.quals = append(l.quals, Qual{})
	copy(l.quals[i+1:], l.quals[i:])
	l.quals[i] = q
	for bi := range l.binds {
		if l.binds[bi].QualIdx >= i {
			l.binds[bi].QualIdx++
		}
	}
	return nil
}

// FixupOrder is called once at scan initialization, with the skip qual at
// position skipIdx of an as-yet-unsorted list. It moves the skip qual
// rightward until it is the first qual whose column ordinal is >= its own,
// restoring the sort invariant, and returns the skip qual's new position.
// Bindings referencing relocated quals are corrected by the same shift.
func (l *List) FixupOrder(skipIdx int) (int, error) {
	if skipIdx < 0 || skipIdx >= len(l.quals) {
		return 0, errors.AssertionFailedf("skip qual index %d out of range [0,%d)", skipIdx, len(l.quals))
	}
	skip := l.quals[skipIdx]
	off := skipIdx
	for off+1 < len(l.quals) && l.quals[off+1].ColIdx < skip.ColIdx {
		off++
	}
	if off == skipIdx {
		return off, nil
	}
	copy(l.quals[skipIdx:off], l.quals[skipIdx+1:off+1])
	l.quals[off] = skip
	for bi := range l.binds {
		b := &l.binds[bi]
		if b.QualIdx == skipIdx {
			return 0, errors.AssertionFailedf(
				"skip qual at position %d referenced by a runtime binding", skipIdx)
		}
		if b.QualIdx > skipIdx && b.QualIdx <= off {
			b.QualIdx--
		}
	}
	return off, nil
}

// EvalBinds populates bound qual arguments from the given parameter values.
// Called whenever the scan is (re)positioned.
func (l *List) EvalBinds(params tree.Datums) error {
	for _, b := range l.binds {
		if b.QualIdx < 0 || b.QualIdx >= len(l.quals) {
			return errors.AssertionFailedf(
				"runtime binding references qual %d of %d", b.QualIdx, len(l.quals))
		}
		if b.ParamIdx < 0 || b.ParamIdx >= len(params) {
			return errors.Newf("no value for parameter $%d", b.ParamIdx+1)
		}
		l.quals[b.QualIdx].SetBound(params[b.ParamIdx])
	}
	return nil
}
