// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// StructuredConfig is the top-level configuration container for sealkv
// client processes. It aggregates all sub-configurations and is populated
// by merging values from environment variables and command-line flags.
//
// Struct tags:
//   - envPrefix — prefix applied to all nested env tag lookups (caarlos0/env).
//   - env       — direct environment variable name for scalar fields.
type StructuredConfig struct {
	// KeyService holds the connection settings for the remote key service
	// that issues and retrieves wrapped data-key material.
	KeyService KeyService `envPrefix:"KEY_SERVICE_"`

	// Table holds the DynamoDB table settings.
	Table Table `envPrefix:"TABLE_"`

	// Client holds per-client identity and key material locations.
	Client Client `envPrefix:"CLIENT_"`
}

// KeyService holds network and credential settings for the key service.
type KeyService struct {
	// BaseURL is the key service endpoint, e.g. "https://keys.example.com".
	// Env: KEY_SERVICE_BASE_URL
	BaseURL string `env:"BASE_URL"`

	// AccessKey is the long-lived access key exchanged for short-lived
	// bearer tokens. Must be kept confidential.
	// Env: KEY_SERVICE_ACCESS_KEY
	AccessKey string `env:"ACCESS_KEY"`

	// RequestTimeout bounds a single key service request (e.g. "10s").
	// Env: KEY_SERVICE_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// TokenRefreshInterval is how often the background credential job
	// refreshes the bearer token (e.g. "5m"). Zero disables the job;
	// tokens are then refreshed lazily on expiry.
	// Env: KEY_SERVICE_TOKEN_REFRESH_INTERVAL
	TokenRefreshInterval time.Duration `env:"TOKEN_REFRESH_INTERVAL"`
}

// Table holds the storage backend settings.
type Table struct {
	// Name is the DynamoDB table name.
	// Env: TABLE_NAME
	Name string `env:"NAME"`

	// Region is the AWS region of the table (e.g. "us-east-1").
	// Env: TABLE_REGION
	Region string `env:"REGION"`

	// Endpoint optionally overrides the DynamoDB endpoint, e.g. for a
	// local instance ("http://localhost:8000"). Empty uses the SDK
	// default resolution.
	// Env: TABLE_ENDPOINT
	Endpoint string `env:"ENDPOINT"`
}

// Client holds the client's identity and local key material locations.
type Client struct {
	// ID identifies this client to the key service.
	// Env: CLIENT_ID
	ID string `env:"ID"`

	// WorkspaceID scopes key material to a workspace.
	// Env: CLIENT_WORKSPACE_ID
	WorkspaceID string `env:"WORKSPACE_ID"`

	// KeySetPath is the path to the client's serialised recryption key
	// set. The file is assumed to be protected at rest.
	// Env: CLIENT_KEY_SET_PATH
	KeySetPath string `env:"KEY_SET_PATH"`

	// RootKey is the hex-encoded 32-byte index root key from which all
	// per-index keys are derived. Must be kept confidential.
	// Env: CLIENT_ROOT_KEY
	RootKey string `env:"ROOT_KEY"`
}

// RootKeyBytes decodes the hex root key into its fixed-size form.
func (c Client) RootKeyBytes() ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(c.RootKey)
	if err != nil {
		return key, fmt.Errorf("decode root key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("root key must be %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// GetStructuredConfig loads, merges, and validates the client
// configuration from all available sources in the following priority order
// (first source wins for non-zero fields):
//  1. Environment variables
//  2. Command-line flags
//
// Returns a fully populated *StructuredConfig or an error if any source
// fails to load or the final config fails validation.
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		build()
}
