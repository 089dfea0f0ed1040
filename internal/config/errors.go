// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

// Validation errors returned by [StructuredConfig.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidKeyServiceConfigs indicates invalid key service settings
	// (for example, missing base URL or access key).
	ErrInvalidKeyServiceConfigs = errors.New("invalid key service configuration")
	// ErrInvalidTableConfigs indicates invalid storage table settings
	// (for example, empty table name).
	ErrInvalidTableConfigs = errors.New("invalid table configuration")
	// ErrInvalidClientConfigs indicates invalid client identity settings
	// (for example, missing key set path or a malformed root key).
	ErrInvalidClientConfigs = errors.New("invalid client configuration")
)
