// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"fmt"
	"strings"

	"github.com/sealkv/sealkv/indexer"
	"github.com/sealkv/sealkv/models"
)

// FlattenDelimiter joins a map-valued attribute's name with its inner
// keys when flattening. User attribute names containing it are rejected
// up front so flattened names can never collide with real attributes.
const FlattenDelimiter = "."

// Classification describes each attribute's role for one record type. It
// is hand- or tool-generated configuration handed to the sealer, never
// derived by runtime introspection.
type Classification struct {
	// Protected attributes are encrypted and may be indexed.
	Protected []string

	// Plaintext attributes are stored unencrypted with their native
	// storage type.
	Plaintext []string

	// Skipped attributes are omitted from storage entirely and come back
	// as their type's null-equivalent.
	Skipped []string

	// Indexes are the queryable index declarations over classified
	// attributes.
	Indexes []indexer.Index
}

// Validate checks the classification before any record is processed.
// Violations are configuration errors: fatal to setup, never retried.
func (c Classification) Validate() error {
	roles := make(map[string]string)
	for _, group := range []struct {
		role  string
		names []string
	}{
		{"protected", c.Protected},
		{"plaintext", c.Plaintext},
		{"skipped", c.Skipped},
	} {
		for _, name := range group.names {
			if name == models.PartitionKeyAttr || name == models.SortKeyAttr || name == models.TermAttr {
				return fmt.Errorf("%w: %q", ErrReservedAttribute, name)
			}
			if strings.Contains(name, FlattenDelimiter) {
				return fmt.Errorf("%w: %q contains %q", ErrAttributeCollision, name, FlattenDelimiter)
			}
			if prior, ok := roles[name]; ok {
				return fmt.Errorf("attribute %q classified as both %s and %s", name, prior, group.role)
			}
			roles[name] = group.role
		}
	}

	for _, idx := range c.Indexes {
		for _, field := range idx.Fields {
			role, ok := roles[field.Name]
			if !ok || role == "skipped" {
				return fmt.Errorf("index %q: %w: %q", idx.Name, ErrMissingAttribute, field.Name)
			}
		}
	}
	return nil
}

// IsProtected reports whether name is classified as protected.
func (c Classification) IsProtected(name string) bool {
	return contains(c.Protected, name)
}

// IsPlaintext reports whether name is classified as unprotected plaintext.
func (c Classification) IsPlaintext(name string) bool {
	return contains(c.Plaintext, name)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
