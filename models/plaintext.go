// SPDX-License-Identifier: Apache-2.0

package models

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// PlaintextKind identifies the concrete field type carried by a [Plaintext].
// Every supported record field type maps to exactly one kind; nullability is
// carried separately so that a null value still knows its type.
type PlaintextKind uint8

const (
	KindBigInt    PlaintextKind = 1  // int64
	KindBool      PlaintextKind = 2  // bool
	KindDecimal   PlaintextKind = 3  // fixed-point decimal, canonical string form
	KindFloat     PlaintextKind = 4  // float64
	KindInt       PlaintextKind = 5  // int32
	KindSmallInt  PlaintextKind = 6  // int16
	KindTimestamp PlaintextKind = 7  // UTC instant, millisecond precision
	KindString    PlaintextKind = 8  // UTF-8 string
	KindDate      PlaintextKind = 9  // calendar date, no time component
	KindBigUInt   PlaintextKind = 10 // uint64
	KindBytes     PlaintextKind = 11 // opaque byte sequence
	KindMap       PlaintextKind = 12 // nested map of string -> Plaintext
)

// String returns the lower-case name of the kind, used in error messages.
func (k PlaintextKind) String() string {
	switch k {
	case KindBigInt:
		return "bigint"
	case KindBool:
		return "bool"
	case KindDecimal:
		return "decimal"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindSmallInt:
		return "smallint"
	case KindTimestamp:
		return "timestamp"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindBigUInt:
		return "biguint"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	// plaintextVersion is the first byte of every canonical encoding.
	plaintextVersion = 1

	// nullFlag marks an absent value in the flags byte; the remaining bits
	// carry the kind so type information survives the encrypted round trip.
	nullFlag = 0b1000_0000
	kindMask = 0b0111_1111
)

var (
	// ErrMalformedPlaintext reports a canonical encoding that cannot be
	// decoded (truncated header, unknown kind or wrong payload size).
	ErrMalformedPlaintext = errors.New("malformed plaintext encoding")

	// ErrNotEncodable reports a Plaintext that has no canonical byte
	// encoding of its own. Map values are flattened into sub-attributes
	// before encryption and are never encoded directly.
	ErrNotEncodable = errors.New("plaintext kind is not encodable")
)

// Plaintext is a tagged union over the primitive field types of a record.
// The zero value is not valid; use the constructors. A null value is a
// present Plaintext whose IsNull reports true, never an omitted one.
type Plaintext struct {
	kind PlaintextKind
	null bool

	str   string
	b     bool
	i     int64
	u     uint64
	f     float64
	t     time.Time
	bytes []byte
	m     map[string]Plaintext
}

// NewString returns a string Plaintext.
func NewString(v string) Plaintext { return Plaintext{kind: KindString, str: v} }

// NewBool returns a bool Plaintext.
func NewBool(v bool) Plaintext { return Plaintext{kind: KindBool, b: v} }

// NewSmallInt returns an int16 Plaintext.
func NewSmallInt(v int16) Plaintext { return Plaintext{kind: KindSmallInt, i: int64(v)} }

// NewInt returns an int32 Plaintext.
func NewInt(v int32) Plaintext { return Plaintext{kind: KindInt, i: int64(v)} }

// NewBigInt returns an int64 Plaintext.
func NewBigInt(v int64) Plaintext { return Plaintext{kind: KindBigInt, i: v} }

// NewBigUInt returns a uint64 Plaintext.
func NewBigUInt(v uint64) Plaintext { return Plaintext{kind: KindBigUInt, u: v} }

// NewFloat returns a float64 Plaintext.
func NewFloat(v float64) Plaintext { return Plaintext{kind: KindFloat, f: v} }

// NewDecimal returns a fixed-point decimal Plaintext from its canonical
// string form (e.g. "123.45"). The value is kept exact, never parsed into
// a float.
func NewDecimal(v string) Plaintext { return Plaintext{kind: KindDecimal, str: v} }

// NewDate returns a calendar-date Plaintext. Any time-of-day component of v
// is discarded; the date is interpreted in UTC.
func NewDate(v time.Time) Plaintext {
	y, m, d := v.UTC().Date()
	return Plaintext{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NewTimestamp returns a UTC timestamp Plaintext truncated to millisecond
// precision, the precision of the canonical encoding.
func NewTimestamp(v time.Time) Plaintext {
	return Plaintext{kind: KindTimestamp, t: v.UTC().Truncate(time.Millisecond)}
}

// NewBytes returns an opaque byte-sequence Plaintext. The slice is not
// copied; callers must not mutate it afterwards.
func NewBytes(v []byte) Plaintext { return Plaintext{kind: KindBytes, bytes: v} }

// NewMap returns a nested map Plaintext. Map values are flattened into
// per-key sub-attributes at seal time rather than encoded as a unit.
func NewMap(v map[string]Plaintext) Plaintext { return Plaintext{kind: KindMap, m: v} }

// Null returns the null-equivalent Plaintext for the given kind.
func Null(kind PlaintextKind) Plaintext { return Plaintext{kind: kind, null: true} }

// Kind returns the concrete type of the value.
func (p Plaintext) Kind() PlaintextKind { return p.kind }

// IsNull reports whether the value is the null-equivalent of its kind.
func (p Plaintext) IsNull() bool { return p.null }

// AsString returns the string value. The second return is false when the
// value is null or of another kind.
func (p Plaintext) AsString() (string, bool) {
	return p.str, p.kind == KindString && !p.null
}

// AsBool returns the bool value.
func (p Plaintext) AsBool() (bool, bool) { return p.b, p.kind == KindBool && !p.null }

// AsSmallInt returns the int16 value.
func (p Plaintext) AsSmallInt() (int16, bool) {
	return int16(p.i), p.kind == KindSmallInt && !p.null
}

// AsInt returns the int32 value.
func (p Plaintext) AsInt() (int32, bool) { return int32(p.i), p.kind == KindInt && !p.null }

// AsBigInt returns the int64 value.
func (p Plaintext) AsBigInt() (int64, bool) { return p.i, p.kind == KindBigInt && !p.null }

// AsBigUInt returns the uint64 value.
func (p Plaintext) AsBigUInt() (uint64, bool) { return p.u, p.kind == KindBigUInt && !p.null }

// AsFloat returns the float64 value.
func (p Plaintext) AsFloat() (float64, bool) { return p.f, p.kind == KindFloat && !p.null }

// AsDecimal returns the canonical decimal string.
func (p Plaintext) AsDecimal() (string, bool) { return p.str, p.kind == KindDecimal && !p.null }

// AsDate returns the calendar date as a UTC midnight time.Time.
func (p Plaintext) AsDate() (time.Time, bool) { return p.t, p.kind == KindDate && !p.null }

// AsTimestamp returns the UTC timestamp.
func (p Plaintext) AsTimestamp() (time.Time, bool) {
	return p.t, p.kind == KindTimestamp && !p.null
}

// AsBytes returns the byte sequence.
func (p Plaintext) AsBytes() ([]byte, bool) { return p.bytes, p.kind == KindBytes && !p.null }

// AsMap returns the nested map.
func (p Plaintext) AsMap() (map[string]Plaintext, bool) {
	return p.m, p.kind == KindMap && !p.null
}

// epochDays converts a UTC midnight date to days since the Unix epoch.
// Dates before 1970 yield negative counts.
func epochDays(t time.Time) int32 {
	return int32(t.Unix() / 86_400)
}

// Equal reports whether two Plaintext values have the same kind and value.
// Two nulls of the same kind are equal.
func (p Plaintext) Equal(o Plaintext) bool {
	if p.kind != o.kind || p.null != o.null {
		return false
	}
	if p.null {
		return true
	}
	switch p.kind {
	case KindString, KindDecimal:
		return p.str == o.str
	case KindBool:
		return p.b == o.b
	case KindSmallInt, KindInt, KindBigInt:
		return p.i == o.i
	case KindBigUInt:
		return p.u == o.u
	case KindFloat:
		return p.f == o.f
	case KindDate, KindTimestamp:
		return p.t.Equal(o.t)
	case KindBytes:
		if len(p.bytes) != len(o.bytes) {
			return false
		}
		for i := range p.bytes {
			if p.bytes[i] != o.bytes[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(p.m) != len(o.m) {
			return false
		}
		for k, v := range p.m {
			ov, ok := o.m[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Encode returns the canonical byte encoding: a version byte, a flags byte
// (kind plus null bit) and a big-endian payload. The encoding is the unit
// of encryption for protected attributes and the input to index-term
// derivation, so it must be deterministic.
func (p Plaintext) Encode() ([]byte, error) {
	if p.kind == KindMap {
		return nil, fmt.Errorf("%w: %s", ErrNotEncodable, p.kind)
	}

	flags := uint8(p.kind)
	if p.null {
		flags |= nullFlag
	}
	out := []byte{plaintextVersion, flags}
	if p.null {
		return out, nil
	}

	switch p.kind {
	case KindString, KindDecimal:
		out = append(out, p.str...)
	case KindBool:
		if p.b {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case KindSmallInt:
		out = binary.BigEndian.AppendUint16(out, uint16(int16(p.i)))
	case KindInt:
		out = binary.BigEndian.AppendUint32(out, uint32(int32(p.i)))
	case KindBigInt:
		out = binary.BigEndian.AppendUint64(out, uint64(p.i))
	case KindBigUInt:
		out = binary.BigEndian.AppendUint64(out, p.u)
	case KindFloat:
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(p.f))
	case KindDate:
		out = binary.BigEndian.AppendUint32(out, uint32(epochDays(p.t)))
	case KindTimestamp:
		out = binary.BigEndian.AppendUint64(out, uint64(p.t.UnixMilli()))
	case KindBytes:
		out = append(out, p.bytes...)
	}

	return out, nil
}

// DecodePlaintext parses a canonical encoding produced by [Plaintext.Encode].
// It never truncates or coerces: a payload of the wrong size for its kind is
// reported as [ErrMalformedPlaintext].
func DecodePlaintext(data []byte) (Plaintext, error) {
	if len(data) < 2 {
		return Plaintext{}, fmt.Errorf("%w: missing header", ErrMalformedPlaintext)
	}
	if data[0] != plaintextVersion {
		return Plaintext{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPlaintext, data[0])
	}

	kind := PlaintextKind(data[1] & kindMask)
	payload := data[2:]

	if data[1]&nullFlag != 0 {
		switch kind {
		case KindBigInt, KindBool, KindDecimal, KindFloat, KindInt, KindSmallInt,
			KindTimestamp, KindString, KindDate, KindBigUInt, KindBytes:
			return Null(kind), nil
		default:
			return Plaintext{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedPlaintext, kind)
		}
	}

	switch kind {
	case KindString:
		return NewString(string(payload)), nil
	case KindDecimal:
		return NewDecimal(string(payload)), nil
	case KindBool:
		if len(payload) != 1 || payload[0] > 1 {
			return Plaintext{}, fmt.Errorf("%w: bad bool payload", ErrMalformedPlaintext)
		}
		return NewBool(payload[0] == 1), nil
	case KindSmallInt:
		if len(payload) != 2 {
			return Plaintext{}, fmt.Errorf("%w: bad smallint payload", ErrMalformedPlaintext)
		}
		return NewSmallInt(int16(binary.BigEndian.Uint16(payload))), nil
	case KindInt:
		if len(payload) != 4 {
			return Plaintext{}, fmt.Errorf("%w: bad int payload", ErrMalformedPlaintext)
		}
		return NewInt(int32(binary.BigEndian.Uint32(payload))), nil
	case KindBigInt:
		if len(payload) != 8 {
			return Plaintext{}, fmt.Errorf("%w: bad bigint payload", ErrMalformedPlaintext)
		}
		return NewBigInt(int64(binary.BigEndian.Uint64(payload))), nil
	case KindBigUInt:
		if len(payload) != 8 {
			return Plaintext{}, fmt.Errorf("%w: bad biguint payload", ErrMalformedPlaintext)
		}
		return NewBigUInt(binary.BigEndian.Uint64(payload)), nil
	case KindFloat:
		if len(payload) != 8 {
			return Plaintext{}, fmt.Errorf("%w: bad float payload", ErrMalformedPlaintext)
		}
		return NewFloat(math.Float64frombits(binary.BigEndian.Uint64(payload))), nil
	case KindDate:
		if len(payload) != 4 {
			return Plaintext{}, fmt.Errorf("%w: bad date payload", ErrMalformedPlaintext)
		}
		days := int32(binary.BigEndian.Uint32(payload))
		return NewDate(time.Unix(int64(days)*86_400, 0).UTC()), nil
	case KindTimestamp:
		if len(payload) != 8 {
			return Plaintext{}, fmt.Errorf("%w: bad timestamp payload", ErrMalformedPlaintext)
		}
		return NewTimestamp(time.UnixMilli(int64(binary.BigEndian.Uint64(payload))).UTC()), nil
	case KindBytes:
		return NewBytes(append([]byte(nil), payload...)), nil
	default:
		return Plaintext{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedPlaintext, kind)
	}
}
