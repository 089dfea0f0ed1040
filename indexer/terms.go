// SPDX-License-Identifier: Apache-2.0

package indexer

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/sealkv/sealkv/models"
	"github.com/sealkv/sealkv/ore"
)

// Indexer derives index and query terms under a client root key. Each
// index gets its own derived key, so identical values in different
// indexes produce unrelated terms. Indexer is stateless and safe for
// concurrent use.
type Indexer struct {
	rootKey [32]byte
}

// NewIndexer creates an indexer over the client's index root key.
func NewIndexer(rootKey [32]byte) *Indexer {
	return &Indexer{rootKey: rootKey}
}

func (ix *Indexer) indexKey(name string) ([32]byte, error) {
	var key [32]byte
	kdf := hkdf.New(sha256.New, ix.rootKey[:], nil, []byte("index/"+name))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, fmt.Errorf("derive key for index %q: %w", name, err)
	}
	return key, nil
}

// Term derives the stored index term for one record's composite value.
// Derivation is a pure function of (index key, values): identical inputs
// always yield identical terms. Any null input short-circuits to the null
// term; null values are never indexed.
func (ix *Indexer) Term(idx Index, comp Composite) (models.IndexTerm, error) {
	if comp.Len() != len(idx.Fields) {
		return models.IndexTerm{}, fmt.Errorf("index %q: %w: %d values for %d fields",
			idx.Name, ErrArity, comp.Len(), len(idx.Fields))
	}
	if comp.HasNull() {
		return models.NullTerm(), nil
	}

	key, err := ix.indexKey(idx.Name)
	if err != nil {
		return models.IndexTerm{}, err
	}

	if !idx.Compound() {
		return ix.singleTerm(idx.Fields[0], key, comp.At(0))
	}
	return ix.compoundTerm(idx, key, comp)
}

// singleTerm handles a one-field index through the order-revealing
// encoder, so stored terms stay comparable for range semantics.
func (ix *Indexer) singleTerm(field FieldSpec, key [32]byte, value models.Plaintext) (models.IndexTerm, error) {
	cipher := ore.NewCipher(key)

	if field.Mode == ModeExact {
		term, err := cipher.Encrypt(value)
		if err != nil {
			return models.IndexTerm{}, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return models.FullTerm(term), nil
	}

	s, ok := value.AsString()
	if !ok {
		return models.IndexTerm{}, fmt.Errorf("field %q: %w", field.Name, ErrPrefixNotString)
	}

	entries := make([][]byte, 0, min(len(s), MaxTermsPerIndex))
	for k := 1; k <= len(s) && k <= MaxTermsPerIndex; k++ {
		term, err := cipher.EncryptString(s[:k])
		if err != nil {
			return models.IndexTerm{}, fmt.Errorf("field %q: %w", field.Name, err)
		}
		entries = append(entries, term)
	}
	return models.ArrayTerm(entries), nil
}

// compoundTerm folds the fields into keyed terms in declared order: each
// exact field advances every accumulated term with the value's canonical
// encoding, and a trailing prefix field fans one term out per significant
// prefix. Field order is significant by construction.
func (ix *Indexer) compoundTerm(idx Index, key [32]byte, comp Composite) (models.IndexTerm, error) {
	acc := [][]byte{[]byte(idx.Name)}

	for i, field := range idx.Fields {
		value := comp.At(i)

		switch field.Mode {
		case ModeExact:
			enc, err := value.Encode()
			if err != nil {
				return models.IndexTerm{}, fmt.Errorf("field %q: %w", field.Name, err)
			}
			for j := range acc {
				acc[j] = keyedTerm(key, acc[j], enc)
			}

		case ModePrefix:
			s, ok := value.AsString()
			if !ok {
				return models.IndexTerm{}, fmt.Errorf("field %q: %w", field.Name, ErrPrefixNotString)
			}
			s = normalise(s)

			next := make([][]byte, 0, min(len(s), MaxTermsPerIndex))
			for _, entry := range acc {
				for k := 1; k <= len(s) && len(next) < MaxTermsPerIndex; k++ {
					next = append(next, keyedTerm(key, entry, []byte(s[:k])))
				}
			}
			acc = next
		}
	}

	if len(acc) == 1 {
		return models.FullTerm(acc[0]), nil
	}
	return models.ArrayTerm(acc), nil
}

// QueryTerm derives the single term for a query against the index. An
// all-exact query reproduces the stored full term; a query whose final
// constraint is a starts-with reproduces the stored array entry at the
// prefix's position.
func (ix *Indexer) QueryTerm(idx Index, comp Composite) ([]byte, error) {
	if comp.Len() != len(idx.Fields) {
		return nil, fmt.Errorf("index %q: %w: %d values for %d fields",
			idx.Name, ErrArity, comp.Len(), len(idx.Fields))
	}

	key, err := ix.indexKey(idx.Name)
	if err != nil {
		return nil, err
	}

	if !idx.Compound() {
		return ix.singleQueryTerm(idx.Fields[0], key, comp.At(0))
	}

	entry := []byte(idx.Name)
	for i, field := range idx.Fields {
		value := comp.At(i)

		switch field.Mode {
		case ModeExact:
			enc, err := value.Encode()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			entry = keyedTerm(key, entry, enc)

		case ModePrefix:
			s, ok := value.AsString()
			if !ok {
				return nil, fmt.Errorf("field %q: %w", field.Name, ErrPrefixNotString)
			}
			entry = keyedTerm(key, entry, []byte(normalise(s)))
		}
	}
	return entry, nil
}

func (ix *Indexer) singleQueryTerm(field FieldSpec, key [32]byte, value models.Plaintext) ([]byte, error) {
	cipher := ore.NewCipher(key)

	if field.Mode == ModeExact {
		term, err := cipher.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return term, nil
	}

	s, ok := value.AsString()
	if !ok {
		return nil, fmt.Errorf("field %q: %w", field.Name, ErrPrefixNotString)
	}
	term, err := cipher.EncryptString(s)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field.Name, err)
	}
	return term, nil
}

// keyedTerm advances an accumulated term with the next field
// contribution under the index key.
func keyedTerm(key [32]byte, entry, contribution []byte) []byte {
	mac := hmac.New(sha256.New, key[:])
	mac.Write(entry)
	mac.Write(contribution)
	return mac.Sum(nil)
}

// normalise applies the case folding shared by stored prefix entries and
// query prefixes, so "Dan" matches a record sealed with "Dan Draper".
func normalise(s string) string {
	return strings.ToLower(s)
}
