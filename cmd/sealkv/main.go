// SPDX-License-Identifier: Apache-2.0

// Command sealkv runs an insert/query round trip against an encrypted
// DynamoDB table, demonstrating the full stack: key service credentials,
// proxy re-encryption, searchable index terms and the table layer.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/sealkv/sealkv/crypto"
	"github.com/sealkv/sealkv/indexer"
	"github.com/sealkv/sealkv/internal/config"
	"github.com/sealkv/sealkv/internal/logger"
	"github.com/sealkv/sealkv/keyservice"
	"github.com/sealkv/sealkv/models"
	"github.com/sealkv/sealkv/recrypt"
	"github.com/sealkv/sealkv/table"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("sealkv")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	ctx := context.Background()

	tbl, creds, err := buildTable(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init error")
	}
	defer creds.Stop()

	if err := roundTrip(ctx, tbl); err != nil {
		log.Fatal().Err(err).Msg("round trip error")
	}
}

func buildTable(ctx context.Context, cfg *config.StructuredConfig, log *logger.Logger) (*table.EncryptedTable, *keyservice.Credentials, error) {
	rootKey, err := cfg.Client.RootKeyBytes()
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(cfg.Client.KeySetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read key set: %w", err)
	}
	keySet, err := recrypt.ProxyKeySetFromBytes(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse key set: %w", err)
	}

	creds, err := keyservice.NewCredentials(keyservice.CredentialsConfig{
		BaseURL:   cfg.KeyService.BaseURL,
		AccessKey: cfg.KeyService.AccessKey,
		Timeout:   cfg.KeyService.RequestTimeout,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	creds.Start(ctx, cfg.KeyService.TokenRefreshInterval)

	keys, err := keyservice.NewClient(keyservice.Config{
		BaseURL:     cfg.KeyService.BaseURL,
		ClientID:    cfg.Client.ID,
		WorkspaceID: cfg.Client.WorkspaceID,
		Timeout:     cfg.KeyService.RequestTimeout,
	}, creds, log)
	if err != nil {
		creds.Stop()
		return nil, nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Table.Region))
	if err != nil {
		creds.Stop()
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Table.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Table.Endpoint)
		}
	})

	schema, err := userSchema()
	if err != nil {
		creds.Stop()
		return nil, nil, err
	}

	tbl, err := table.New(db, cfg.Table.Name, schema, crypto.NewScopedCipher(keys, keySet, rootKey),
		indexer.NewIndexer(rootKey), log)
	if err != nil {
		creds.Stop()
		return nil, nil, err
	}
	return tbl, creds, nil
}

func userSchema() (table.Schema, error) {
	emailName, err := indexer.NewIndex("email#name",
		indexer.FieldSpec{Name: "email", Mode: indexer.ModeExact},
		indexer.FieldSpec{Name: "name", Mode: indexer.ModePrefix},
	)
	if err != nil {
		return table.Schema{}, err
	}

	return table.Schema{
		Type: "user",
		Classification: crypto.Classification{
			Protected: []string{"email", "name"},
			Plaintext: []string{"created"},
			Indexes:   []indexer.Index{emailName},
		},
		EncryptedPrimaryKeys: true,
	}, nil
}

func roundTrip(ctx context.Context, tbl *table.EncryptedTable) error {
	key := table.Key{Partition: "user#demo"}

	record := crypto.Record{
		"email":   models.NewString("demo@example.com"),
		"name":    models.NewString("Demo User"),
		"created": models.NewBigInt(1),
	}
	if err := tbl.Put(ctx, key, record); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	unsealed, err := tbl.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	email, _, err := unsealed.String(ctx, "email")
	if err != nil {
		return fmt.Errorf("unseal email: %w", err)
	}
	fmt.Printf("Get: email=%s\n", email)

	results, err := tbl.Query().
		Eq("email", models.NewString("demo@example.com")).
		StartsWith("name", "demo").
		Send(ctx)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	fmt.Printf("Query: %d match(es)\n", len(results))

	return nil
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
