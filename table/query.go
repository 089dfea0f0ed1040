// SPDX-License-Identifier: Apache-2.0

package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sealkv/sealkv/crypto"
	"github.com/sealkv/sealkv/indexer"
	"github.com/sealkv/sealkv/models"
)

type queryOp uint8

const (
	opEq queryOp = iota
	opStartsWith
)

type queryPart struct {
	field string
	value models.Plaintext
	op    queryOp
}

// Query accumulates constraints, resolves them against the schema's
// declared indexes and runs a single term-equality lookup. Constraints
// compose; a query that no declared index can serve fails at Send.
type Query struct {
	table *EncryptedTable
	parts []queryPart
}

// Query starts a query against the table's declared indexes.
func (t *EncryptedTable) Query() *Query {
	return &Query{table: t}
}

// Eq constrains an exact-mode field to equal value.
func (q *Query) Eq(field string, value models.Plaintext) *Query {
	q.parts = append(q.parts, queryPart{field: field, value: value, op: opEq})
	return q
}

// StartsWith constrains a prefix-mode field to start with value.
func (q *Query) StartsWith(field string, value string) *Query {
	q.parts = append(q.parts, queryPart{field: field, value: models.NewString(value), op: opStartsWith})
	return q
}

// Send resolves the constraints to one declared index, derives the query
// term and returns every matching record, unsealed lazily.
func (q *Query) Send(ctx context.Context) ([]*crypto.Unsealed, error) {
	idx, comp, err := q.resolveIndex()
	if err != nil {
		return nil, err
	}

	term, err := q.table.indexer.QueryTerm(idx, comp)
	if err != nil {
		return nil, err
	}

	items, err := q.table.queryTerm(ctx, term)
	if err != nil {
		return nil, err
	}

	results := make([]*crypto.Unsealed, 0, len(items))
	for _, item := range items {
		attrs, err := decodeItem(item)
		if err != nil {
			return nil, err
		}
		unsealed, err := q.table.sealer.Unseal(attrs, q.table.schema.Classification)
		if err != nil {
			return nil, err
		}
		results = append(results, unsealed)
	}

	q.table.log.Debug().
		Str("index", idx.Name).
		Int("matches", len(results)).
		Msg("query")
	return results, nil
}

// resolveIndex finds the declared index whose fields, in declared order,
// match the constraints. Constraint order does not matter; field order
// within the index does, and a starts-with constraint must land on a
// prefix-mode field.
func (q *Query) resolveIndex() (indexer.Index, indexer.Composite, error) {
	if len(q.parts) == 0 {
		return indexer.Index{}, indexer.Composite{}, fmt.Errorf("%w: no constraints", ErrInvalidQuery)
	}

	for _, idx := range q.table.schema.Classification.Indexes {
		comp, ok := q.matchIndex(idx)
		if ok {
			return idx, comp, nil
		}
	}

	fields := make([]string, len(q.parts))
	for i, p := range q.parts {
		fields[i] = p.field
	}
	return indexer.Index{}, indexer.Composite{}, fmt.Errorf("%w: fields %s",
		ErrInvalidQuery, strings.Join(fields, ", "))
}

func (q *Query) matchIndex(idx indexer.Index) (indexer.Composite, bool) {
	if len(idx.Fields) != len(q.parts) {
		return indexer.Composite{}, false
	}

	comp := indexer.NewComposite()
	for _, field := range idx.Fields {
		part, ok := q.partFor(field)
		if !ok {
			return indexer.Composite{}, false
		}
		comp, _ = comp.Push(part.value)
	}
	return comp, true
}

func (q *Query) partFor(field indexer.FieldSpec) (queryPart, bool) {
	for _, p := range q.parts {
		if p.field != field.Name {
			continue
		}
		switch p.op {
		case opEq:
			return p, field.Mode == indexer.ModeExact
		case opStartsWith:
			return p, field.Mode == indexer.ModePrefix
		}
	}
	return queryPart{}, false
}

// queryTerm pages through the term GSI collecting every item whose term
// attribute equals term.
func (t *EncryptedTable) queryTerm(ctx context.Context, term []byte) ([]map[string]types.AttributeValue, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)

	for {
		out, err := t.db.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(t.name),
			IndexName:              aws.String(TermIndexName),
			KeyConditionExpression: aws.String("#term = :term"),
			ExpressionAttributeNames: map[string]string{
				"#term": models.TermAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":term": &types.AttributeValueMemberB{Value: term},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackend, err)
		}

		items = append(items, out.Items...)

		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}
