// SPDX-License-Identifier: Apache-2.0

package indexer

import (
	"fmt"

	"github.com/sealkv/sealkv/models"
)

// Composite is an ordered, fixed-arity aggregate of plaintext values, one
// per index field in declared order. It is built fresh per indexing
// operation and consumed immediately.
type Composite struct {
	values []models.Plaintext
}

// NewComposite starts an empty composite.
func NewComposite() Composite {
	return Composite{}
}

// CompositeOf builds a composite from the given values, enforcing the
// arity limit.
func CompositeOf(values ...models.Plaintext) (Composite, error) {
	c := NewComposite()
	var err error
	for _, v := range values {
		if c, err = c.Push(v); err != nil {
			return Composite{}, err
		}
	}
	return c, nil
}

// Push appends a value, returning the extended composite. Exceeding the
// supported arity is an error.
func (c Composite) Push(v models.Plaintext) (Composite, error) {
	if len(c.values) >= MaxFields {
		return Composite{}, fmt.Errorf("%w: at most %d values", ErrTooManyFields, MaxFields)
	}
	return Composite{values: append(append([]models.Plaintext(nil), c.values...), v)}, nil
}

// Len returns the number of values pushed so far.
func (c Composite) Len() int { return len(c.values) }

// At returns the i-th value in push order.
func (c Composite) At(i int) models.Plaintext { return c.values[i] }

// HasNull reports whether any value is the null-equivalent.
func (c Composite) HasNull() bool {
	for _, v := range c.values {
		if v.IsNull() {
			return true
		}
	}
	return false
}
