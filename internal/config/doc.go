// Package config provides configuration loading, merging, and validation
// facilities for sealkv client processes.
//
// Configuration is assembled from multiple sources in the following
// priority order (earlier sources win for non-zero fields):
//  1. Environment variables
//  2. Command-line flags
//
// The main entry point is [GetStructuredConfig]. The crypto core never
// reads configuration; only the key service client, table layer, and
// command wiring consume it.
package config
