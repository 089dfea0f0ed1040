// SPDX-License-Identifier: Apache-2.0

package keyservice

import "errors"

var (
	// ErrBadRequest reports a request the service rejected as invalid.
	ErrBadRequest = errors.New("key service rejected the request")

	// ErrUnauthorized reports a rejected or expired bearer token.
	ErrUnauthorized = errors.New("key service unauthorized")

	// ErrNotFound reports key material the service does not know,
	// typically a retrieve with a foreign iv or tag.
	ErrNotFound = errors.New("key material not found")

	// ErrTransient marks failures worth retrying at the operation level:
	// transport errors and 5xx responses. The client itself never
	// retries; backoff policy belongs to the caller.
	ErrTransient = errors.New("transient key service failure")

	// ErrInvalidResponse reports a response body that does not decode to
	// the expected shape.
	ErrInvalidResponse = errors.New("invalid key service response")
)
