// SPDX-License-Identifier: Apache-2.0

package models

// TermKind distinguishes the shapes an index term can take.
type TermKind uint8

const (
	// TermNull marks an index over an absent value. Null values are never
	// indexed for matching; the marker keeps term derivation total.
	TermNull TermKind = iota

	// TermFull is a single fixed-length ciphertext for exact (and ordered)
	// matching of a whole value.
	TermFull

	// TermArray is an ordered ciphertext sequence, one entry per
	// significant prefix length, supporting prefix queries.
	TermArray
)

// IndexTerm is the queryable ciphertext derived from one or more plaintext
// values. Derivation is a pure function of the index key material and the
// inputs: identical inputs always yield identical terms.
type IndexTerm struct {
	kind  TermKind
	term  []byte
	terms [][]byte
}

// NullTerm returns the marker term for an absent input value.
func NullTerm() IndexTerm { return IndexTerm{kind: TermNull} }

// FullTerm wraps a single ciphertext term.
func FullTerm(term []byte) IndexTerm { return IndexTerm{kind: TermFull, term: term} }

// ArrayTerm wraps an ordered ciphertext sequence.
func ArrayTerm(terms [][]byte) IndexTerm { return IndexTerm{kind: TermArray, terms: terms} }

// Kind returns the term shape.
func (t IndexTerm) Kind() TermKind { return t.kind }

// IsNull reports whether the term is the null marker.
func (t IndexTerm) IsNull() bool { return t.kind == TermNull }

// Bytes returns the single ciphertext of a full term, or nil for other
// shapes.
func (t IndexTerm) Bytes() []byte {
	if t.kind != TermFull {
		return nil
	}
	return t.term
}

// Array returns the ciphertext sequence of an array term, or nil for other
// shapes.
func (t IndexTerm) Array() [][]byte {
	if t.kind != TermArray {
		return nil
	}
	return t.terms
}

// Flatten returns every ciphertext the term carries, in order. A null term
// flattens to nothing.
func (t IndexTerm) Flatten() [][]byte {
	switch t.kind {
	case TermFull:
		return [][]byte{t.term}
	case TermArray:
		return t.terms
	default:
		return nil
	}
}
