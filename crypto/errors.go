// SPDX-License-Identifier: Apache-2.0

package crypto

import "errors"

var (
	// ErrMissingAttribute reports an index field that is not part of the
	// record's classification.
	ErrMissingAttribute = errors.New("index references an unclassified attribute")

	// ErrReservedAttribute reports a record attribute using a name
	// reserved for the storage layer.
	ErrReservedAttribute = errors.New("attribute name is reserved")

	// ErrAttributeCollision reports a user attribute name that collides
	// with the flattened name of a map entry.
	ErrAttributeCollision = errors.New("attribute name collides with a flattened map entry")

	// ErrTypeMismatch reports a stored value that does not match the type
	// requested at unseal time. Values are never coerced.
	ErrTypeMismatch = errors.New("stored value does not match requested type")

	// ErrMalformedEnvelope reports ciphertext bytes that do not parse as
	// an attribute envelope.
	ErrMalformedEnvelope = errors.New("malformed attribute envelope")

	// ErrDecrypt reports an authenticated decryption failure.
	ErrDecrypt = errors.New("attribute decryption failed")
)
