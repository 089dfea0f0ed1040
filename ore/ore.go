// SPDX-License-Identifier: Apache-2.0

// Package ore implements a deterministic order-revealing encoder for index
// terms. Ciphertexts produced under one key can be compared for order and
// equality without decryption; the order and equality leak is the accepted
// tradeoff that makes server-side exact and range matching possible.
package ore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sealkv/sealkv/models"
)

const (
	// TermSize is the width of a single encrypted term for one 64-bit
	// order code: 64 bit positions at 2 bits each.
	TermSize = 16

	// StringChunks is the fixed number of order-code chunks a string is
	// packed into. Shorter strings are padded with zero chunks so string
	// terms are fixed length and chunk-wise comparable.
	StringChunks = 6

	// StringTermSize is the width of a full string term.
	StringTermSize = StringChunks * TermSize

	bitPositions = 64
)

var (
	// ErrUnsupportedType reports a plaintext kind that has no defined
	// ordering under this encoder.
	ErrUnsupportedType = errors.New("plaintext type is not orderable")

	// ErrNotASCII reports a string containing bytes outside the ASCII
	// range; only pure-ASCII strings have a defined collation here.
	ErrNotASCII = errors.New("can only order strings that are pure ascii")

	// ErrNullValue reports an attempt to encrypt an absent value. Null
	// handling is a policy decision made by the caller, never here.
	ErrNullValue = errors.New("null values cannot be order encrypted")
)

// Cipher produces order-revealing terms under a 32-byte index root key.
// It is stateless and safe for concurrent use.
type Cipher struct {
	key [32]byte
}

// NewCipher creates a cipher keyed by the index root key.
func NewCipher(key [32]byte) *Cipher {
	return &Cipher{key: key}
}

// EncryptUint64 encrypts one order code into a fixed-width term. For each
// bit position, most significant first, the term stores the keyed PRF of
// the preceding bit prefix plus the bit itself, mod 3, packed two bits per
// position. Two terms agree exactly up to the first plaintext bit that
// differs, which is what [Compare] exploits.
func (c *Cipher) EncryptUint64(value uint64) [TermSize]byte {
	var term [TermSize]byte
	for i := 0; i < bitPositions; i++ {
		bit := (value >> (bitPositions - 1 - i)) & 1

		// Mask everything below position i so the PRF input depends
		// only on the prefix.
		prefix := value
		if i == 0 {
			prefix = 0
		} else {
			prefix &^= (1 << (bitPositions - i)) - 1
		}

		u := (c.prf(prefix, uint8(i)) + uint8(bit)) % 3
		term[i/4] |= u << ((i % 4) * 2)
	}
	return term
}

func (c *Cipher) prf(prefix uint64, position uint8) uint8 {
	mac := hmac.New(sha256.New, c.key[:])
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[:8], prefix)
	buf[8] = position
	mac.Write(buf[:])
	return mac.Sum(nil)[0] % 3
}

// Compare reveals the order of the two plaintexts behind a and b, which
// must have been encrypted under the same key. It returns -1, 0 or 1 in
// the manner of bytes.Compare.
func Compare(a, b [TermSize]byte) int {
	for i := 0; i < bitPositions; i++ {
		ua := (a[i/4] >> ((i % 4) * 2)) & 3
		ub := (b[i/4] >> ((i % 4) * 2)) & 3

		if ua == ub {
			continue
		}
		// At the first differing position the difference mod 3 is the
		// difference of the plaintext bits: 1 means a carried the 1 bit.
		if (ua+3-ub)%3 == 1 {
			return 1
		}
		return -1
	}
	return 0
}

// Encrypt maps a plaintext value to its single full term. Strings go
// through [Cipher.EncryptString]; every other orderable kind encrypts its
// order code into one fixed-width term. Null values and kinds with no
// defined order are errors.
func (c *Cipher) Encrypt(value models.Plaintext) ([]byte, error) {
	if value.IsNull() {
		return nil, ErrNullValue
	}
	if s, ok := value.AsString(); ok {
		return c.EncryptString(s)
	}

	code, err := OrderCode(value)
	if err != nil {
		return nil, err
	}
	term := c.EncryptUint64(code)
	return term[:], nil
}

// EncryptString encrypts a string into its fixed-width full term: the
// string is normalised and packed into order-code chunks, each chunk is
// encrypted, and missing chunks are padded with the encryption of zero so
// shorter strings sort before longer ones.
func (c *Cipher) EncryptString(s string) ([]byte, error) {
	chunks, err := Orderise(s)
	if err != nil {
		return nil, fmt.Errorf("orderise %q: %w", s, err)
	}

	out := make([]byte, 0, StringTermSize)
	for i := 0; i < StringChunks; i++ {
		var chunk uint64
		if i < len(chunks) {
			chunk = chunks[i]
		}
		term := c.EncryptUint64(chunk)
		out = append(out, term[:]...)
	}
	return out, nil
}

// CompareStrings reveals the collation order of the two normalised strings
// behind full string terms a and b.
func CompareStrings(a, b []byte) int {
	for i := 0; i < StringChunks; i++ {
		var ta, tb [TermSize]byte
		copy(ta[:], a[i*TermSize:])
		copy(tb[:], b[i*TermSize:])
		if cmp := Compare(ta, tb); cmp != 0 {
			return cmp
		}
	}
	return 0
}
