// SPDX-License-Identifier: Apache-2.0

package ore

import (
	"fmt"
	"math"
	"time"

	"github.com/sealkv/sealkv/models"
)

// OrderCode maps an orderable scalar plaintext onto the unsigned 64-bit
// domain such that the plaintext order is the unsigned integer order of
// the codes. Strings are handled separately by [Orderise]; decimals carry
// no fixed-width order mapping and are rejected.
func OrderCode(p models.Plaintext) (uint64, error) {
	if p.IsNull() {
		return 0, ErrNullValue
	}

	switch p.Kind() {
	case models.KindSmallInt:
		v, _ := p.AsSmallInt()
		// Flipping the sign bit shifts the signed range onto the
		// unsigned one order-preservingly.
		return uint64(uint16(v) ^ (math.MaxUint16/2 + 1)), nil

	case models.KindInt:
		v, _ := p.AsInt()
		return uint64(uint32(v) ^ (math.MaxUint32/2 + 1)), nil

	case models.KindBigInt:
		v, _ := p.AsBigInt()
		return uint64(v) ^ (math.MaxUint64/2 + 1), nil

	case models.KindBigUInt:
		v, _ := p.AsBigUInt()
		return v, nil

	case models.KindBool:
		if v, _ := p.AsBool(); v {
			return 1, nil
		}
		return 0, nil

	case models.KindFloat:
		v, _ := p.AsFloat()
		return floatOrderCode(v), nil

	case models.KindDate:
		v, _ := p.AsDate()
		return uint64(uint32(dateDays(v)) ^ (math.MaxUint32/2 + 1)), nil

	case models.KindTimestamp:
		v, _ := p.AsTimestamp()
		return uint64(v.UnixMilli()) ^ (math.MaxUint64/2 + 1), nil

	case models.KindDecimal:
		return 0, fmt.Errorf("%w: decimal", ErrUnsupportedType)

	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, p.Kind())
	}
}

// floatOrderCode is the IEEE 754 total-order mapping: positive floats get
// their sign bit set, negative floats are wholly inverted, and -0 is
// folded into +0 so the two compare equal.
func floatOrderCode(v float64) uint64 {
	if v == 0 {
		// -0 folds into +0 so the two compare equal.
		return 0x8000_0000_0000_0000
	}
	bits := math.Float64bits(v)
	mask := uint64(int64(bits)>>63) | 0x8000_0000_0000_0000
	return bits ^ mask
}

// dateDays counts whole days since the Unix epoch, rounding toward
// negative infinity so pre-epoch dates order correctly.
func dateDays(t time.Time) int32 {
	secs := t.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	return int32(days)
}
