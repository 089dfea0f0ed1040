// SPDX-License-Identifier: Apache-2.0

package recrypt

import "fmt"

// SymmetricCipher encrypts and decrypts full key-material messages under
// one party's key set. It is stateless and safe for concurrent use.
type SymmetricCipher struct {
	keyset *EncryptionKeySet
}

// NewSymmetricCipher wraps a key set. The key set is not copied.
func NewSymmetricCipher(keyset *EncryptionKeySet) *SymmetricCipher {
	return &SymmetricCipher{keyset: keyset}
}

// Encrypt transforms message (which must be exactly [KeyMaterialSize]
// bytes) into ciphertext one block longer. The message goes through the
// all-or-nothing transform, the block sequence is permuted, and every
// block is byte-permuted and XOR-chained against a running value stepped
// from the IV, so no single ciphertext block is decryptable without all of
// them.
func (c *SymmetricCipher) Encrypt(iv Iv, message []byte) ([]byte, error) {
	blocks, err := aont(&iv, message)
	if err != nil {
		return nil, err
	}
	if len(blocks) != c.keyset.P3.Size() {
		return nil, fmt.Errorf("%w: %d blocks, key set expects %d",
			ErrMalformedMessage, len(blocks)-1, c.keyset.P3.Size()-1)
	}

	permuteSlice(c.keyset.P3, blocks)

	chain := iv
	for i := range blocks {
		c.keyset.P1.Apply(blocks[i][:])
		c.keyset.P2.Apply(chain[:])
		xorBlock(&blocks[i], &chain)
		chain = blocks[i]
	}

	return joinBlocks(blocks), nil
}

// Decrypt reverses Encrypt: undo the XOR chain low to high, de-permute
// each block, de-permute the block sequence, then invert the transform.
func (c *SymmetricCipher) Decrypt(iv Iv, input []byte) ([]byte, error) {
	blocks, err := splitBlocks(input)
	if err != nil {
		return nil, err
	}
	if len(blocks) != c.keyset.P3.Size() {
		return nil, fmt.Errorf("%w: %d blocks, key set expects %d",
			ErrMalformedCiphertext, len(blocks), c.keyset.P3.Size())
	}

	chain := iv
	for i := range blocks {
		tmp := blocks[i]
		c.keyset.P2.Apply(chain[:])
		xorBlock(&blocks[i], &chain)
		chain = tmp
		c.keyset.P1.Invert(blocks[i][:])
	}

	invertSlice(c.keyset.P3, blocks)

	return deont(blocks)
}

// ProxyCipher re-encrypts ciphertext from a source key set's domain into a
// target key set's domain. The only operations performed are permutation
// and XOR; the plaintext is never materialised, which is what lets a key
// service re-key material for a client without seeing the client's key.
type ProxyCipher struct {
	keyset *ProxyKeySet
}

// NewProxyCipher wraps a proxy key set. The key set is not copied.
func NewProxyCipher(keyset *ProxyKeySet) *ProxyCipher {
	return &ProxyCipher{keyset: keyset}
}

// Reencrypt undoes the source party's XOR chain and permutations and
// re-applies the target party's, yielding ciphertext decryptable only by
// the target key set under the same IV.
func (c *ProxyCipher) Reencrypt(iv Iv, input []byte) ([]byte, error) {
	blocks, err := splitBlocks(input)
	if err != nil {
		return nil, err
	}
	if len(blocks) != c.keyset.P3.Size() {
		return nil, fmt.Errorf("%w: %d blocks, proxy key set expects %d",
			ErrMalformedCiphertext, len(blocks), c.keyset.P3.Size())
	}

	// Undo the source chain, translating each block's byte permutation
	// straight into the target's via the complement.
	chain := iv
	for i := range blocks {
		tmp := blocks[i]
		c.keyset.P2From.Apply(chain[:])
		xorBlock(&blocks[i], &chain)
		chain = tmp
		c.keyset.P1.Apply(blocks[i][:])
	}

	// Translate the block-sequence permutation.
	permuteSlice(c.keyset.P3, blocks)

	// Re-apply the chain under the target's key.
	chain = iv
	for i := range blocks {
		c.keyset.P2To.Apply(chain[:])
		xorBlock(&blocks[i], &chain)
		chain = blocks[i]
	}

	return joinBlocks(blocks), nil
}
