// SPDX-License-Identifier: Apache-2.0

package table

import "errors"

var (
	// ErrNotFound reports a Get for a primary key with no stored record.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidQuery reports query constraints that match no declared
	// index.
	ErrInvalidQuery = errors.New("no index matches the query constraints")

	// ErrUnsupportedAttribute reports a stored attribute value of a type
	// the engine does not produce.
	ErrUnsupportedAttribute = errors.New("unsupported attribute value type")

	// ErrBackend wraps storage backend failures.
	ErrBackend = errors.New("storage backend request failed")
)
