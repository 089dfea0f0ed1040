// SPDX-License-Identifier: Apache-2.0

// Package table stores sealed records in DynamoDB. Each record becomes a
// root item plus one item per derived index term; term items carry the
// term ciphertext under a fixed attribute so a single GSI serves every
// index. Primary keys can themselves be stored as keyed digests so the
// partition and sort keys reveal nothing about the record.
package table

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sealkv/sealkv/crypto"
	"github.com/sealkv/sealkv/indexer"
	"github.com/sealkv/sealkv/internal/logger"
)

// TermIndexName is the global secondary index keyed on the term
// attribute. Every query resolves to a single term equality against it.
const TermIndexName = "TermIndex"

// maxTransactItems is the DynamoDB limit on items per transaction.
const maxTransactItems = 100

// API is the slice of the DynamoDB client the table uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Schema describes one record type stored in the table: its type name
// (which scopes key derivation and defaults the sort key), the attribute
// classification with its indexes, and whether primary keys are stored
// as keyed digests.
type Schema struct {
	Type                 string
	Classification       crypto.Classification
	EncryptedPrimaryKeys bool
}

// Key is a record's logical primary key. An empty Sort defaults to the
// schema type name.
type Key struct {
	Partition string
	Sort      string
}

// EncryptedTable seals records on the way in and unseals them on the way
// out; the backend only ever sees ciphertext, keyed digests and the
// attributes classified as plaintext.
type EncryptedTable struct {
	db     API
	name   string
	schema Schema

	cipher  *crypto.ScopedCipher
	indexer *indexer.Indexer
	sealer  *crypto.Sealer
	log     *logger.Logger
}

// New builds an encrypted table over a DynamoDB client. The schema's
// classification is validated once here; an invalid classification is a
// configuration error and no operation will run with one.
func New(db API, tableName string, schema Schema, cipher *crypto.ScopedCipher, ix *indexer.Indexer, log *logger.Logger) (*EncryptedTable, error) {
	if err := schema.Classification.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	return &EncryptedTable{
		db:      db,
		name:    tableName,
		schema:  schema,
		cipher:  cipher,
		indexer: ix,
		sealer:  crypto.NewSealer(cipher, ix),
		log:     log,
	}, nil
}

// Put seals the record and writes it transactionally: the root item, one
// item per index term, and deletions for every term slot the record no
// longer occupies. Stale-slot deletion makes updates safe; without it a
// changed value would leave its old terms queryable.
func (t *EncryptedTable) Put(ctx context.Context, key Key, record crypto.Record) error {
	sealed, err := t.sealer.Seal(ctx, record, t.schema.Classification, t.schema.Type)
	if err != nil {
		return err
	}

	pk, sk := t.storedPrimaryKey(key)

	items := make([]types.TransactWriteItem, 0, 1+len(sealed.Terms))

	root, err := encodeItem(pk, sk, nil, sealed.Attributes)
	if err != nil {
		return err
	}
	items = append(items, putItem(t.name, root))

	seen := map[string]struct{}{sk: {}}

	for _, st := range sealed.Terms {
		for i, value := range st.Term.Flatten() {
			termSK := t.termSortKey(pk, sk, st.IndexName, st.IndexType, i)
			seen[termSK] = struct{}{}

			item, err := encodeItem(pk, termSK, value, sealed.Attributes)
			if err != nil {
				return err
			}
			items = append(items, putItem(t.name, item))
		}
	}

	deletes := 0
	for _, candidate := range t.allTermSortKeys(pk, sk) {
		if _, live := seen[candidate]; live {
			continue
		}
		del, err := deleteItem(t.name, pk, candidate)
		if err != nil {
			return err
		}
		items = append(items, del)
		deletes++
	}

	if err := t.transact(ctx, items); err != nil {
		return err
	}

	t.log.Debug().
		Str("type", t.schema.Type).
		Int("puts", 1+len(sealed.Terms)).
		Int("stale_deletes", deletes).
		Msg("put record")
	return nil
}

// Get fetches and unseals the record stored under key. Protected
// attributes stay encrypted inside the returned Unsealed until read.
func (t *EncryptedTable) Get(ctx context.Context, key Key) (*crypto.Unsealed, error) {
	pk, sk := t.storedPrimaryKey(key)

	dk, err := marshalKey(pk, sk)
	if err != nil {
		return nil, err
	}

	out, err := t.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       dk,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	attrs, err := decodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	return t.sealer.Unseal(attrs, t.schema.Classification)
}

// Delete removes the root item and every possible term item for the key.
// The term slot count is fixed per index, so the full set of candidate
// sort keys is enumerable without reading the record first.
func (t *EncryptedTable) Delete(ctx context.Context, key Key) error {
	pk, sk := t.storedPrimaryKey(key)

	candidates := append(t.allTermSortKeys(pk, sk), sk)

	items := make([]types.TransactWriteItem, 0, len(candidates))
	for _, candidate := range candidates {
		del, err := deleteItem(t.name, pk, candidate)
		if err != nil {
			return err
		}
		items = append(items, del)
	}

	if err := t.transact(ctx, items); err != nil {
		return err
	}

	t.log.Debug().
		Str("type", t.schema.Type).
		Int("deletes", len(items)).
		Msg("delete record")
	return nil
}

// storedPrimaryKey maps a logical key to the stored partition and sort
// keys. With encrypted primary keys the stored values are keyed digests
// and the sort digest is bound to the partition digest, so equal sort
// keys under different partitions stay unlinkable.
func (t *EncryptedTable) storedPrimaryKey(key Key) (pk, sk string) {
	pk = key.Partition
	sk = key.Sort
	if sk == "" {
		sk = t.schema.Type
	}

	if t.schema.EncryptedPrimaryKeys {
		pk = b64(t.cipher.Mac(pk, ""))
		sk = b64(t.cipher.Mac(sk, pk))
	}
	return pk, sk
}

// termSortKey derives the stored sort key of one term slot. The digest
// is salted with the stored partition key so identical slots in
// different partitions never collide.
func (t *EncryptedTable) termSortKey(pk, sk, indexName, indexType string, i int) string {
	return b64(t.cipher.Mac(formatTermKey(sk, indexName, indexType, i), pk))
}

// allTermSortKeys enumerates every term sort key the schema can ever
// produce for one record, one per slot per declared index.
func (t *EncryptedTable) allTermSortKeys(pk, sk string) []string {
	var keys []string
	for _, idx := range t.schema.Classification.Indexes {
		for i := 0; i < indexer.MaxTermsPerIndex; i++ {
			keys = append(keys, t.termSortKey(pk, sk, idx.Name, idx.Type(), i))
		}
	}
	return keys
}

func formatTermKey(sk, indexName, indexType string, i int) string {
	return fmt.Sprintf("%s#%s#%s#%d", sk, indexName, indexType, i)
}

func b64(digest []byte) string {
	return base64.RawURLEncoding.EncodeToString(digest)
}

func putItem(table string, item map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(table),
			Item:      item,
		},
	}
}

func deleteItem(table, pk, sk string) (types.TransactWriteItem, error) {
	key, err := marshalKey(pk, sk)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(table),
			Key:       key,
		},
	}, nil
}

// transact writes the items in chunks of the backend's transaction
// limit. Chunks beyond the first are not atomic with it; the original
// record write always lands in the first chunk.
func (t *EncryptedTable) transact(ctx context.Context, items []types.TransactWriteItem) error {
	for start := 0; start < len(items); start += maxTransactItems {
		end := min(start+maxTransactItems, len(items))

		_, err := t.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[start:end],
		})
		if err != nil {
			var canceled *types.TransactionCanceledException
			if errors.As(err, &canceled) {
				return fmt.Errorf("%w: transaction canceled: %v", ErrBackend, canceled.CancellationReasons)
			}
			return fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}
	return nil
}
