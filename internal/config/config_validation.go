// SPDX-License-Identifier: Apache-2.0

package config

import "fmt"

// validate checks that the final merged [StructuredConfig] satisfies all
// invariants the client runtime depends on. Timeouts may be zero; callers
// apply their own defaults.
//
// Returns nil if the configuration is valid, or a descriptive error
// otherwise.
func (cfg *StructuredConfig) validate() error {
	if cfg.KeyService.BaseURL == "" || cfg.KeyService.AccessKey == "" {
		return ErrInvalidKeyServiceConfigs
	}

	if cfg.Table.Name == "" {
		return ErrInvalidTableConfigs
	}

	if cfg.Client.KeySetPath == "" {
		return ErrInvalidClientConfigs
	}

	if _, err := cfg.Client.RootKeyBytes(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidClientConfigs, err)
	}

	return nil
}
