// SPDX-License-Identifier: Apache-2.0

package models

import (
	"bytes"
	"fmt"
	"strconv"
)

// Reserved attribute names for the primary key of a storage item. User
// attributes named "pk"/"sk" stay in the attribute map; the real partition
// and sort keys are stored under these prefixed names so the two can never
// collide.
const (
	PartitionKeyAttr = "__pk"
	SortKeyAttr      = "__sk"
	TermAttr         = "term"
)

// ValueKind is the storage-side type of a table attribute value.
type ValueKind uint8

const (
	ValueBytes  ValueKind = iota + 1 // raw ciphertext or opaque bytes
	ValueString                      // native string
	ValueNumber                      // native number, canonical decimal string
	ValueBool                        // native boolean
	ValueNull                        // explicit null
)

// TableValue is an attribute value as stored by the backend: encrypted
// values are raw ciphertext bytes, plaintext values retain their native
// storage type.
type TableValue struct {
	kind ValueKind
	s    string
	b    bool
	raw  []byte
}

// BytesValue returns a byte (ciphertext) table value.
func BytesValue(v []byte) TableValue { return TableValue{kind: ValueBytes, raw: v} }

// StringValue returns a native string table value.
func StringValue(v string) TableValue { return TableValue{kind: ValueString, s: v} }

// NumberValue returns a native number value from its canonical decimal
// string form.
func NumberValue(v string) TableValue { return TableValue{kind: ValueNumber, s: v} }

// BoolValue returns a native boolean table value.
func BoolValue(v bool) TableValue { return TableValue{kind: ValueBool, b: v} }

// NullValue returns an explicit storage null.
func NullValue() TableValue { return TableValue{kind: ValueNull} }

// Kind returns the storage-side type of the value.
func (v TableValue) Kind() ValueKind { return v.kind }

// AsBytes returns the raw bytes of a byte value.
func (v TableValue) AsBytes() ([]byte, bool) { return v.raw, v.kind == ValueBytes }

// AsString returns the native string of a string value.
func (v TableValue) AsString() (string, bool) { return v.s, v.kind == ValueString }

// AsNumber returns the canonical decimal string of a number value.
func (v TableValue) AsNumber() (string, bool) { return v.s, v.kind == ValueNumber }

// AsBool returns the native boolean of a boolean value.
func (v TableValue) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// IsNull reports whether the value is an explicit storage null.
func (v TableValue) IsNull() bool { return v.kind == ValueNull }

// Equal reports whether two table values are identical in kind and content.
func (v TableValue) Equal(o TableValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueBytes:
		return bytes.Equal(v.raw, o.raw)
	case ValueString, ValueNumber:
		return v.s == o.s
	case ValueBool:
		return v.b == o.b
	default:
		return true
	}
}

// TableValueOf converts an unprotected Plaintext to its native storage
// representation. Nulls become explicit storage nulls; dates and timestamps
// are stored as their canonical numeric encodings so they remain sortable
// by the backend.
func TableValueOf(p Plaintext) (TableValue, error) {
	if p.IsNull() {
		return NullValue(), nil
	}
	switch p.Kind() {
	case KindString:
		s, _ := p.AsString()
		return StringValue(s), nil
	case KindDecimal:
		s, _ := p.AsDecimal()
		return NumberValue(s), nil
	case KindBool:
		b, _ := p.AsBool()
		return BoolValue(b), nil
	case KindSmallInt:
		n, _ := p.AsSmallInt()
		return NumberValue(strconv.FormatInt(int64(n), 10)), nil
	case KindInt:
		n, _ := p.AsInt()
		return NumberValue(strconv.FormatInt(int64(n), 10)), nil
	case KindBigInt:
		n, _ := p.AsBigInt()
		return NumberValue(strconv.FormatInt(n, 10)), nil
	case KindBigUInt:
		n, _ := p.AsBigUInt()
		return NumberValue(strconv.FormatUint(n, 10)), nil
	case KindFloat:
		f, _ := p.AsFloat()
		return NumberValue(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case KindDate:
		d, _ := p.AsDate()
		return NumberValue(strconv.FormatInt(int64(epochDays(d)), 10)), nil
	case KindTimestamp:
		t, _ := p.AsTimestamp()
		return NumberValue(strconv.FormatInt(t.UnixMilli(), 10)), nil
	case KindBytes:
		b, _ := p.AsBytes()
		return BytesValue(b), nil
	default:
		return TableValue{}, fmt.Errorf("%w: %s", ErrNotEncodable, p.Kind())
	}
}

// TableEntry is the storage-item form of a sealed record: a primary key, an
// optional index term and the attribute map, ready for backend
// serialisation.
type TableEntry struct {
	PK string
	SK string

	// Term carries one index-term ciphertext on index items; nil on the
	// root item of a record.
	Term []byte

	Attributes map[string]TableValue
}

// NewTableEntry returns an entry with an empty attribute map.
func NewTableEntry(pk, sk string) TableEntry {
	return TableEntry{PK: pk, SK: sk, Attributes: make(map[string]TableValue)}
}
