// SPDX-License-Identifier: Apache-2.0

package config

import (
	"flag"
	"time"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-key-service-url key service endpoint URL
//	-access-key key service access key
//	-request-timeout key service request timeout (e.g., "10s")
//	-token-refresh-interval bearer token refresh interval (e.g., "5m")
//	-table DynamoDB table name
//	-region AWS region
//	-endpoint DynamoDB endpoint override (e.g., local instance)
//	-client-id client identifier
//	-workspace-id workspace identifier
//	-key-set path to the serialised recryption key set
//	-root-key hex-encoded 32-byte index root key
func ParseFlags() *StructuredConfig {
	var keyServiceURL string
	var accessKey string
	var requestTimeout time.Duration
	var tokenRefreshInterval time.Duration
	var tableName string
	var region string
	var endpoint string
	var clientID string
	var workspaceID string
	var keySetPath string
	var rootKey string

	flag.StringVar(&keyServiceURL, "key-service-url", "", "Key service endpoint URL")
	flag.StringVar(&accessKey, "access-key", "", "Key service access key")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 10s)")
	flag.DurationVar(&tokenRefreshInterval, "token-refresh-interval", 0, "Token refresh interval (e.g., 5m)")
	flag.StringVar(&tableName, "table", "", "DynamoDB table name")
	flag.StringVar(&region, "region", "", "AWS region")
	flag.StringVar(&endpoint, "endpoint", "", "DynamoDB endpoint override")
	flag.StringVar(&clientID, "client-id", "", "Client identifier")
	flag.StringVar(&workspaceID, "workspace-id", "", "Workspace identifier")
	flag.StringVar(&keySetPath, "key-set", "", "Recryption key set path")
	flag.StringVar(&rootKey, "root-key", "", "Hex-encoded index root key")

	flag.Parse()

	return &StructuredConfig{
		KeyService: KeyService{
			BaseURL:              keyServiceURL,
			AccessKey:            accessKey,
			RequestTimeout:       requestTimeout,
			TokenRefreshInterval: tokenRefreshInterval,
		},
		Table: Table{
			Name:     tableName,
			Region:   region,
			Endpoint: endpoint,
		},
		Client: Client{
			ID:          clientID,
			WorkspaceID: workspaceID,
			KeySetPath:  keySetPath,
			RootKey:     rootKey,
		},
	}
}
