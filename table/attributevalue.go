// SPDX-License-Identifier: Apache-2.0

package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sealkv/sealkv/models"
)

// itemKey carries the reserved primary-key attributes of a stored item.
type itemKey struct {
	PK string `dynamodbav:"__pk"`
	SK string `dynamodbav:"__sk"`
}

func marshalKey(pk, sk string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(itemKey{PK: pk, SK: sk})
	if err != nil {
		return nil, fmt.Errorf("marshal primary key: %w", err)
	}
	return key, nil
}

func encodeValue(v models.TableValue) (types.AttributeValue, error) {
	switch v.Kind() {
	case models.ValueBytes:
		b, _ := v.AsBytes()
		return &types.AttributeValueMemberB{Value: b}, nil
	case models.ValueString:
		s, _ := v.AsString()
		return &types.AttributeValueMemberS{Value: s}, nil
	case models.ValueNumber:
		n, _ := v.AsNumber()
		return &types.AttributeValueMemberN{Value: n}, nil
	case models.ValueBool:
		b, _ := v.AsBool()
		return &types.AttributeValueMemberBOOL{Value: b}, nil
	case models.ValueNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedAttribute, v.Kind())
	}
}

func decodeValue(av types.AttributeValue) (models.TableValue, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberB:
		return models.BytesValue(v.Value), nil
	case *types.AttributeValueMemberS:
		return models.StringValue(v.Value), nil
	case *types.AttributeValueMemberN:
		return models.NumberValue(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return models.BoolValue(v.Value), nil
	case *types.AttributeValueMemberNULL:
		return models.NullValue(), nil
	default:
		return models.TableValue{}, fmt.Errorf("%w: %T", ErrUnsupportedAttribute, av)
	}
}

// encodeItem builds a stored item from the reserved key attributes, an
// optional index term and the sealed attribute map.
func encodeItem(pk, sk string, term []byte, attrs map[string]models.TableValue) (map[string]types.AttributeValue, error) {
	item, err := marshalKey(pk, sk)
	if err != nil {
		return nil, err
	}
	if term != nil {
		item[models.TermAttr] = &types.AttributeValueMemberB{Value: term}
	}
	for name, value := range attrs {
		av, err := encodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		item[name] = av
	}
	return item, nil
}

// decodeItem extracts the attribute map of a stored item, dropping the
// reserved key and term attributes.
func decodeItem(item map[string]types.AttributeValue) (map[string]models.TableValue, error) {
	attrs := make(map[string]models.TableValue, len(item))
	for name, av := range item {
		switch name {
		case models.PartitionKeyAttr, models.SortKeyAttr, models.TermAttr:
			continue
		}
		value, err := decodeValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs[name] = value
	}
	return attrs, nil
}
