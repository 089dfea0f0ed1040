// SPDX-License-Identifier: Apache-2.0

package recrypt

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// BlockSize is the byte-block granularity of the cipher. The AONT, the byte
// permutations and the XOR chain all operate on 16-byte blocks.
const BlockSize = 16

// Block is one cipher block.
type Block = [BlockSize]byte

// xorBlock sets dst ^= src.
func xorBlock(dst *Block, src *Block) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// blockHash hashes a run of blocks and truncates to one block width.
func blockHash(blocks []Block) Block {
	h := sha256.New()
	for i := range blocks {
		h.Write(blocks[i][:])
	}
	var out Block
	copy(out[:], h.Sum(nil)[:BlockSize])
	return out
}

// keystream produces per-block PRF masks from a one-block key: mask i is
// the AES-128 encryption of the big-endian block counter.
type keystream struct {
	aes interface{ Encrypt(dst, src []byte) }
}

func newKeystream(key *Block) (*keystream, error) {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aont prf: %w", err)
	}
	return &keystream{aes: c}, nil
}

func (k *keystream) mask(i uint64) Block {
	var in, out Block
	binary.BigEndian.PutUint64(in[BlockSize-8:], i)
	k.aes.Encrypt(out[:], in[:])
	return out
}

// aont applies the all-or-nothing transform to message under iv, producing
// N+1 blocks. Each message block is masked by the PRF of its position; the
// extra package block is the hash of all masked blocks XORed with the IV,
// so no block is recoverable until every block is known.
func aont(iv *Block, message []byte) ([]Block, error) {
	if len(message)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: message length %d is not a multiple of the block size", ErrMalformedMessage, len(message))
	}

	ks, err := newKeystream(iv)
	if err != nil {
		return nil, err
	}

	n := len(message) / BlockSize
	out := make([]Block, n+1)
	for i := 0; i < n; i++ {
		copy(out[i][:], message[i*BlockSize:])
		mask := ks.mask(uint64(i))
		xorBlock(&out[i], &mask)
	}

	packageBlock := blockHash(out[:n])
	xorBlock(&packageBlock, iv)
	out[n] = packageBlock

	return out, nil
}

// deont inverts the all-or-nothing transform: the package block and the
// hash of the data blocks recover the PRF key, which unmasks every block.
func deont(blocks []Block) ([]byte, error) {
	if len(blocks) < 2 {
		return nil, fmt.Errorf("%w: need at least two blocks", ErrMalformedCiphertext)
	}

	n := len(blocks) - 1
	key := blocks[n]
	hash := blockHash(blocks[:n])
	xorBlock(&key, &hash)

	ks, err := newKeystream(&key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, n*BlockSize)
	for i := 0; i < n; i++ {
		block := blocks[i]
		mask := ks.mask(uint64(i))
		xorBlock(&block, &mask)
		out = append(out, block[:]...)
	}

	return out, nil
}

// splitBlocks decomposes raw ciphertext into blocks, rejecting anything
// that is not an exact block multiple. Corrupt input is an error, never a
// silent truncation.
func splitBlocks(input []byte) ([]Block, error) {
	if len(input) == 0 || len(input)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a block multiple", ErrMalformedCiphertext, len(input))
	}

	blocks := make([]Block, len(input)/BlockSize)
	for i := range blocks {
		copy(blocks[i][:], input[i*BlockSize:])
	}
	return blocks, nil
}

// joinBlocks flattens blocks back into contiguous bytes.
func joinBlocks(blocks []Block) []byte {
	out := make([]byte, 0, len(blocks)*BlockSize)
	for i := range blocks {
		out = append(out, blocks[i][:]...)
	}
	return out
}
