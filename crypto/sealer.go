// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"context"
	"fmt"

	"github.com/sealkv/sealkv/indexer"
	"github.com/sealkv/sealkv/models"
)

// Record is a typed record as the application sees it: attribute name to
// plaintext value. An attribute absent from the map is treated as null.
type Record map[string]models.Plaintext

// Sealer transforms typed records into their encrypted storage form. It
// is stateless across calls; concurrent seals for different records
// proceed independently, each requesting its own key material.
type Sealer struct {
	cipher  *ScopedCipher
	indexer *indexer.Indexer
}

// NewSealer builds a sealer over the scoped cipher and indexer.
func NewSealer(cipher *ScopedCipher, ix *indexer.Indexer) *Sealer {
	return &Sealer{cipher: cipher, indexer: ix}
}

// SealedTerm is one derived index term ready for storage fan-out.
type SealedTerm struct {
	IndexName string
	IndexType string
	Term      models.IndexTerm
}

// Sealed is the storage-ready form of one record: encrypted and plaintext
// attributes plus the derived index terms. The table layer turns it into
// a root item and one item per term.
type Sealed struct {
	Descriptor string
	Attributes map[string]models.TableValue
	Terms      []SealedTerm
}

// Seal converts one record into its sealed form. Protected attributes are
// encrypted under data keys scoped to "descriptor/attribute"; plaintext
// attributes pass through with native types; skipped attributes are
// omitted. Any attribute failure aborts the whole record so no partially
// sealed output is ever emitted.
func (s *Sealer) Seal(ctx context.Context, record Record, cls Classification, descriptor string) (*Sealed, error) {
	if err := cls.Validate(); err != nil {
		return nil, err
	}

	flattened, err := flattenProtected(record, cls)
	if err != nil {
		return nil, err
	}

	sealed := &Sealed{
		Descriptor: descriptor,
		Attributes: make(map[string]models.TableValue, len(flattened)+len(cls.Plaintext)),
	}

	for _, attr := range flattened {
		encoded, err := attr.value.Encode()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr.name, err)
		}

		env, err := s.cipher.Encrypt(ctx, descriptor+"/"+attr.name, encoded)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr.name, err)
		}
		sealed.Attributes[attr.name] = models.BytesValue(env.Encode())
	}

	for _, name := range cls.Plaintext {
		value, ok := record[name]
		if !ok || value.IsNull() {
			continue
		}
		tv, err := models.TableValueOf(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		sealed.Attributes[name] = tv
	}

	for _, idx := range cls.Indexes {
		term, err := s.deriveTerm(idx, record)
		if err != nil {
			return nil, err
		}
		sealed.Terms = append(sealed.Terms, SealedTerm{IndexName: idx.Name, IndexType: idx.Type(), Term: term})
	}

	return sealed, nil
}

// SealAll seals a batch of records under one classification and
// descriptor. The records are independent; the first failure aborts the
// batch.
func (s *Sealer) SealAll(ctx context.Context, records []Record, cls Classification, descriptor string) ([]*Sealed, error) {
	if err := cls.Validate(); err != nil {
		return nil, err
	}

	out := make([]*Sealed, 0, len(records))
	for i, record := range records {
		sealed, err := s.Seal(ctx, record, cls, descriptor)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, sealed)
	}
	return out, nil
}

func (s *Sealer) deriveTerm(idx indexer.Index, record Record) (models.IndexTerm, error) {
	comp := indexer.NewComposite()
	for _, field := range idx.Fields {
		value, ok := record[field.Name]
		if !ok {
			// Absent classified attributes index as null.
			value = models.Null(models.KindString)
		}

		var err error
		if comp, err = comp.Push(value); err != nil {
			return models.IndexTerm{}, fmt.Errorf("index %q: %w", idx.Name, err)
		}
	}
	return s.indexer.Term(idx, comp)
}

type flatAttribute struct {
	name  string
	value models.Plaintext
}

// flattenProtected expands map-valued protected attributes into one
// sub-attribute per inner key and rejects names that would collide with a
// flattened name.
func flattenProtected(record Record, cls Classification) ([]flatAttribute, error) {
	taken := make(map[string]struct{})
	for name := range record {
		taken[name] = struct{}{}
	}

	var out []flatAttribute
	for _, name := range cls.Protected {
		value, ok := record[name]
		if !ok {
			continue
		}

		inner, isMap := value.AsMap()
		if !isMap {
			out = append(out, flatAttribute{name: name, value: value})
			continue
		}

		for key, entry := range inner {
			flat := name + FlattenDelimiter + key
			if _, clash := taken[flat]; clash {
				return nil, fmt.Errorf("%w: %q", ErrAttributeCollision, flat)
			}
			taken[flat] = struct{}{}
			out = append(out, flatAttribute{name: flat, value: entry})
		}
	}
	return out, nil
}
