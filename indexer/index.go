// SPDX-License-Identifier: Apache-2.0

// Package indexer derives queryable ciphertext terms from one or two
// record fields. Single ordered fields go through the order-revealing
// encoder; compound indexes fold the fields into one keyed term so a
// multi-field query is served by a single equality match.
package indexer

import (
	"errors"
	"fmt"
)

// MaxFields is the compound index arity limit. The derivation itself is
// written against the field list, so raising the limit is a one-constant
// change once the query planner can handle wider composites.
const MaxFields = 2

// MaxTermsPerIndex caps how many terms one index may emit for one record.
// The cap keeps the per-record storage fan-out enumerable, which is what
// lets deletes and updates clear stale term slots without a scan.
const MaxTermsPerIndex = 25

var (
	// ErrNoFields reports an index declared with an empty field list.
	ErrNoFields = errors.New("index has no fields")

	// ErrTooManyFields reports an index beyond the supported arity.
	ErrTooManyFields = errors.New("too many fields in compound index")

	// ErrDuplicateField reports the same field declared twice in one
	// index.
	ErrDuplicateField = errors.New("duplicate field in index")

	// ErrPrefixNotLast reports a prefix-mode field anywhere but the
	// final position. A prefix match constrains everything after it, so
	// only the last field can fan out.
	ErrPrefixNotLast = errors.New("prefix field must be the final index field")

	// ErrPrefixNotString reports a prefix-mode field whose value is not
	// a string.
	ErrPrefixNotString = errors.New("prefix indexing requires a string value")

	// ErrArity reports a composite whose value count does not match the
	// index's field count.
	ErrArity = errors.New("composite arity does not match index fields")
)

// Mode is a field's query mode within an index.
type Mode uint8

const (
	// ModeExact serves equality queries on the full value.
	ModeExact Mode = iota

	// ModePrefix serves starts-with queries on a string value.
	ModePrefix
)

func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModePrefix:
		return "prefix"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// FieldSpec names one indexed field and its query mode.
type FieldSpec struct {
	Name string
	Mode Mode
}

// Index is a validated index declaration: a name and one or two fields in
// significant order.
type Index struct {
	Name   string
	Fields []FieldSpec
}

// NewIndex validates and builds an index declaration. All validation
// happens here, before any record is processed: an invalid declaration is
// a configuration error, never a per-record one.
func NewIndex(name string, fields ...FieldSpec) (Index, error) {
	if len(fields) == 0 {
		return Index{}, fmt.Errorf("index %q: %w", name, ErrNoFields)
	}
	if len(fields) > MaxFields {
		return Index{}, fmt.Errorf("index %q: %w: %d fields, at most %d",
			name, ErrTooManyFields, len(fields), MaxFields)
	}

	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return Index{}, fmt.Errorf("index %q: %w: %q", name, ErrDuplicateField, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Mode == ModePrefix && i != len(fields)-1 {
			return Index{}, fmt.Errorf("index %q: %w: %q", name, ErrPrefixNotLast, f.Name)
		}
	}

	return Index{Name: name, Fields: append([]FieldSpec(nil), fields...)}, nil
}

// Compound reports whether the index spans more than one field.
func (ix Index) Compound() bool { return len(ix.Fields) > 1 }

// Type labels the index kind for storage key formatting: "compound" for
// multi-field indexes, otherwise the single field's mode name.
func (ix Index) Type() string {
	if ix.Compound() {
		return "compound"
	}
	return ix.Fields[0].Mode.String()
}

// FieldNames returns the indexed field names in declared order.
func (ix Index) FieldNames() []string {
	names := make([]string, len(ix.Fields))
	for i, f := range ix.Fields {
		names[i] = f.Name
	}
	return names
}
