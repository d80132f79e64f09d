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

// Package catalog holds the table, index and column metadata consumed by the
// planner and the executor: column storage attributes (by-value flag, fixed
// type length, collation), index column directions and NULL ordering, and the
// ordering capability of index and column types.
package catalog

import "github.com/cockroachdb/redact"

// TableID is a unique table identifier.
type TableID uint32

// IndexID is a unique index identifier.
type IndexID uint32

// ColumnID is a unique column identifier within a table. Zero is reserved to
// mean "no column"; index columns backed by expressions rather than stored
// columns use it.
type ColumnID uint32

// SemanticType identifies the value type stored in a column.
type SemanticType int8

// SemanticType values. The zero value is deliberately invalid so that an
// unpopulated descriptor fails type lookups instead of masquerading as a
// real type.
const (
	_ SemanticType = iota
	Int
	Float
	Decimal
	String
	Bytes
	Jsonb
)

// SafeValue implements the redact.SafeValue interface.
func (SemanticType) SafeValue() {}

var _ redact.SafeValue = SemanticType(0)

func (t SemanticType) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Decimal:
		return "decimal"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Jsonb:
		return "jsonb"
	default:
		return "invalid"
	}
}

// ColumnType describes the storage type of a column.
type ColumnType struct {
	Semantic SemanticType
}

// Valid reports whether the type refers to a known semantic type.
func (t ColumnType) Valid() bool {
	return t.Semantic >= Int && t.Semantic <= Jsonb
}

// ByValue reports whether runtime values of this type are stored inline
// rather than via a pointer to separately-allocated storage.
func (t ColumnType) ByValue() bool {
	switch t.Semantic {
	case Int, Float:
		return true
	default:
		return false
	}
}

// Length returns the fixed size of values of this type in bytes, or -1 for
// variable-length types.
func (t ColumnType) Length() int {
	switch t.Semantic {
	case Int, Float:
		return 8
	default:
		return -1
	}
}

// Orderable reports whether the type has a strict ordering operator pair,
// i.e. whether a btree ordering operator family is defined for it.
func (t ColumnType) Orderable() bool {
	return t.Valid() && t.Semantic != Jsonb
}

// ColumnDescriptor describes a single table column.
type ColumnDescriptor struct {
	ID        ColumnID
	Name      string
	Type      ColumnType
	Collation string
}

// Direction is the sort direction of an index column.
type Direction int8

// Direction values.
const (
	Ascending Direction = iota
	Descending
)

// SafeValue implements the redact.SafeValue interface.
func (Direction) SafeValue() {}

var _ redact.SafeValue = Direction(0)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// NullsOrder describes where an index column places NULL keys relative to
// all non-NULL keys.
type NullsOrder int8

// NullsOrder values. The default matches an ascending column: NULLs sort
// after everything else.
const (
	NullsLast NullsOrder = iota
	NullsFirst
)

// SafeValue implements the redact.SafeValue interface.
func (NullsOrder) SafeValue() {}

var _ redact.SafeValue = NullsOrder(0)

func (o NullsOrder) String() string {
	if o == NullsFirst {
		return "NULLS FIRST"
	}
	return "NULLS LAST"
}

// IndexType distinguishes ordered (btree-like) indexes from inverted ones.
type IndexType int8

// IndexType values.
const (
	BTreeIndex IndexType = iota
	InvertedIndex
)

// SafeValue implements the redact.SafeValue interface.
func (IndexType) SafeValue() {}

var _ redact.SafeValue = IndexType(0)

// IndexColumn is a single key column of an index.
type IndexColumn struct {
	// Column is the table column backing this key column, or zero if the key
	// column is an expression.
	Column    ColumnID
	Direction Direction
	Nulls     NullsOrder
}

// IndexDescriptor describes an index over a table.
type IndexDescriptor struct {
	ID      IndexID
	Name    string
	Type    IndexType
	Columns []IndexColumn
}

// Orderable reports whether the index returns rows in a defined sort order,
// i.e. whether it carries a sort operator family. Inverted indexes do not.
func (desc *IndexDescriptor) Orderable() bool {
	return desc.Type == BTreeIndex
}

// TableDescriptor describes a table and its indexes.
type TableDescriptor struct {
	ID      TableID
	Name    string
	Columns []ColumnDescriptor
	Indexes []IndexDescriptor
}

// ColumnByID looks up a column by ID, returning false if the table has no
// such column.
func (desc *TableDescriptor) ColumnByID(id ColumnID) (*ColumnDescriptor, bool) {
	for i := range desc.Columns {
		if desc.Columns[i].ID == id {
			return &desc.Columns[i], true
		}
	}
	return nil, false
}

// ColumnOrdinal returns the position of the column with the given ID in the
// table's rows, or -1 if the table has no such column.
func (desc *TableDescriptor) ColumnOrdinal(id ColumnID) int {
	for i := range desc.Columns {
		if desc.Columns[i].ID == id {
			return i
		}
	}
	return -1
}
