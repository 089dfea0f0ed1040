// SPDX-License-Identifier: Apache-2.0

package recrypt

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// KeyMaterialSize is the fixed size of the key material message the
	// cipher operates on: 32 data blocks plus one package block.
	KeyMaterialSize = 512

	keyMaterialBlocks = KeyMaterialSize / BlockSize

	// IvSize is the initialisation-vector width, one cipher block.
	IvSize = BlockSize
)

// Iv is a per-message initialisation vector.
type Iv = [IvSize]byte

// Key is a 32-byte permutation seed or derived symmetric key.
type Key = [32]byte

var (
	// ErrMalformedMessage reports a plaintext that cannot be block
	// decomposed.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrMalformedCiphertext reports ciphertext whose block decomposition
	// fails or does not match the key set.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrMalformedKeySet reports key-set bytes that cannot be decoded or
	// whose permutations have the wrong sizes.
	ErrMalformedKeySet = errors.New("malformed key set")
)

// EncryptionKeySet holds one party's three permutation keys: P1 and P2 act
// within a block, P3 acts on the block sequence (data blocks plus the
// package block). Generated once per client, long-lived, and never stored
// in plaintext without external protection.
type EncryptionKeySet struct {
	P1 Permutation `json:"p1"`
	P2 Permutation `json:"p2"`
	P3 Permutation `json:"p3"`
}

// GenerateKeySet creates a fresh key set from three independently random
// 32-byte seeds. A failing entropy source is fatal and propagates; it is
// never substituted with a fixed value.
func GenerateKeySet() (*EncryptionKeySet, error) {
	seeds := make([]Key, 3)
	for i := range seeds {
		if _, err := io.ReadFull(rand.Reader, seeds[i][:]); err != nil {
			return nil, fmt.Errorf("generate key set seed: %w", err)
		}
	}

	return &EncryptionKeySet{
		P1: GeneratePermutation(&seeds[0], BlockSize),
		P2: GeneratePermutation(&seeds[1], BlockSize),
		P3: GeneratePermutation(&seeds[2], keyMaterialBlocks+1),
	}, nil
}

// Bytes serialises the key set for storage. External protection (a vault,
// OS keychain or KMS) is assumed; the encoding itself is not encrypted.
func (k *EncryptionKeySet) Bytes() ([]byte, error) {
	return json.Marshal(k)
}

// KeySetFromBytes parses a key set serialised by [EncryptionKeySet.Bytes].
func KeySetFromBytes(data []byte) (*EncryptionKeySet, error) {
	var k EncryptionKeySet
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeySet, err)
	}
	if err := validateSizes(k.P1, k.P2, k.P3); err != nil {
		return nil, err
	}
	return &k, nil
}

// ProxyKeySet grants its holder the ability to transform ciphertext from a
// source key set's domain into a target key set's domain without learning
// either key. It holds the source and target chain permutations and the
// complements of the two position permutations.
type ProxyKeySet struct {
	P1     Permutation `json:"p1"`
	P2From Permutation `json:"p2_from"`
	P2To   Permutation `json:"p2_to"`
	P3     Permutation `json:"p3"`
}

// NewProxyKeySet derives the re-encryption key set for from -> to.
func NewProxyKeySet(from, to *EncryptionKeySet) *ProxyKeySet {
	return &ProxyKeySet{
		P1:     to.P1.Complement(from.P1),
		P2From: from.P2,
		P2To:   to.P2,
		P3:     to.P3.Complement(from.P3),
	}
}

// Bytes serialises the proxy key set.
func (k *ProxyKeySet) Bytes() ([]byte, error) {
	return json.Marshal(k)
}

// ProxyKeySetFromBytes parses a proxy key set serialised by
// [ProxyKeySet.Bytes].
func ProxyKeySetFromBytes(data []byte) (*ProxyKeySet, error) {
	var k ProxyKeySet
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeySet, err)
	}
	if err := validateSizes(k.P1, k.P2From, k.P3); err != nil {
		return nil, err
	}
	if k.P2To.Size() != BlockSize {
		return nil, fmt.Errorf("%w: p2_to size %d", ErrMalformedKeySet, k.P2To.Size())
	}
	return &k, nil
}

func validateSizes(p1, p2, p3 Permutation) error {
	if p1.Size() != BlockSize || p2.Size() != BlockSize {
		return fmt.Errorf("%w: block permutation sizes %d/%d", ErrMalformedKeySet, p1.Size(), p2.Size())
	}
	if p3.Size() != keyMaterialBlocks+1 {
		return fmt.Errorf("%w: sequence permutation size %d", ErrMalformedKeySet, p3.Size())
	}
	return nil
}

// GenerateIv returns a fresh random IV. Entropy failure propagates.
func GenerateIv() (Iv, error) {
	var iv Iv
	if _, err := io.ReadFull(rand.Reader, iv[:]); err != nil {
		return Iv{}, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}
