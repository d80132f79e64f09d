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

package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// A Datum holds a single typed SQL value.
type Datum interface {
	fmt.Stringer
	// Type returns the name of the datum's type.
	Type() string
	// Compare returns -1 if the receiver is less than other, 0 if receiver is
	// equal to other and +1 if receiver is greater than other. NULL compares
	// less than any non-NULL value; ordering relative to NULL placement in an
	// index is decided by the caller, not here.
	Compare(other Datum) int
}

// Datums is a slice of Datum values, typically one row.
type Datums []Datum

// DNull is the NULL Datum.
var DNull Datum = dNull{}

type dNull struct{}

// Type implements the Datum interface.
func (dNull) Type() string { return "NULL" }

// Compare implements the Datum interface.
func (dNull) Compare(other Datum) int {
	if other == DNull {
		return 0
	}
	return -1
}

func (dNull) String() string { return "NULL" }

// DInt is the int Datum.
type DInt int64

// Type implements the Datum interface.
func (d DInt) Type() string { return "int" }

// Compare implements the Datum interface.
func (d DInt) Compare(other Datum) int {
	if other == DNull {
		return 1
	}
	v, ok := other.(DInt)
	if !ok {
		panic(makeUnsupportedComparisonMessage(d, other))
	}
	if d < v {
		return -1
	}
	if d > v {
		return 1
	}
	return 0
}

func (d DInt) String() string { return strconv.FormatInt(int64(d), 10) }

// DFloat is the float Datum.
type DFloat float64

// Type implements the Datum interface.
func (d DFloat) Type() string { return "float" }

// Compare implements the Datum interface.
func (d DFloat) Compare(other Datum) int {
	if other == DNull {
		return 1
	}
	v, ok := other.(DFloat)
	if !ok {
		panic(makeUnsupportedComparisonMessage(d, other))
	}
	if d < v {
		return -1
	}
	if d > v {
		return 1
	}
	return 0
}

func (d DFloat) String() string { return strconv.FormatFloat(float64(d), 'g', -1, 64) }

// DDecimal is the decimal Datum.
type DDecimal struct {
	apd.Decimal
}

// NewDDecimal constructs a DDecimal from a decimal string and panics if the
// string does not parse. For use with constant inputs.
func NewDDecimal(s string) *DDecimal {
	d := &DDecimal{}
	if _, _, err := d.SetString(s); err != nil {
		panic(fmt.Sprintf("could not parse decimal %q: %v", s, err))
	}
	return d
}

// Type implements the Datum interface.
func (d *DDecimal) Type() string { return "decimal" }

// Compare implements the Datum interface.
func (d *DDecimal) Compare(other Datum) int {
	if other == DNull {
		return 1
	}
	v, ok := other.(*DDecimal)
	if !ok {
		panic(makeUnsupportedComparisonMessage(d, other))
	}
	return d.Decimal.Cmp(&v.Decimal)
}

func (d *DDecimal) String() string { return d.Decimal.String() }

// DString is the string Datum.
type DString string

// Type implements the Datum interface.
func (d DString) Type() string { return "string" }

// Compare implements the Datum interface.
func (d DString) Compare(other Datum) int {
	if other == DNull {
		return 1
	}
	v, ok := other.(DString)
	if !ok {
		panic(makeUnsupportedComparisonMessage(d, other))
	}
	if d < v {
		return -1
	}
	if d > v {
		return 1
	}
	return 0
}

func (d DString) String() string { return strconv.Quote(string(d)) }

// DBytes is the bytes Datum. The underlying type is a string because we just
// store a pointer and an immutable length.
type DBytes string

// Type implements the Datum interface.
func (d DBytes) Type() string { return "bytes" }

// Compare implements the Datum interface.
func (d DBytes) Compare(other Datum) int {
	if other == DNull {
		return 1
	}
	v, ok := other.(DBytes)
	if !ok {
		panic(makeUnsupportedComparisonMessage(d, other))
	}
	if d < v {
		return -1
	}
	if d > v {
		return 1
	}
	return 0
}

func (d DBytes) String() string { return strconv.Quote(string(d)) }

func makeUnsupportedComparisonMessage(d, other Datum) string {
	return fmt.Sprintf("unsupported comparison: %s to %s", d.Type(), other.Type())
}

// DeepCopy returns a copy of d that shares no mutable storage with the
// original. Values fetched from a scan are only valid until the scan is next
// repositioned; a caller that retains one across repositions must copy it.
// By-value datums are returned unchanged.
func DeepCopy(d Datum) Datum {
	switch t := d.(type) {
	case *DDecimal:
		// The coefficient holds a big.Int whose storage would otherwise be
		// shared with the source.
		c := &DDecimal{}
		c.Set(&t.Decimal)
		return c
	case DString:
		return DString(strings.Clone(string(t)))
	case DBytes:
		return DBytes(strings.Clone(string(t)))
	default:
		return d
	}
}

// CompareOrdering orders a against b the way an index key comparison does:
// NULLs are placed according to nullsFirst and non-NULL values are compared
// per the column direction.
func CompareOrdering(a, b Datum, desc, nullsFirst bool) int {
	if a == DNull || b == DNull {
		if a == DNull && b == DNull {
			return 0
		}
		aFirst := -1
		if (a == DNull) != nullsFirst {
			aFirst = 1
		}
		return aFirst
	}
	c := a.Compare(b)
	if desc {
		return -c
	}
	return c
}
