// SPDX-License-Identifier: Apache-2.0

// Package recrypt implements the keyed permutation cipher underlying
// sealkv's envelope encryption: an all-or-nothing transform combined with
// three permutation layers, and a proxy variant that re-encrypts ciphertext
// from one key set to another without ever materialising the plaintext.
package recrypt

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// Permutation is a keyed, invertible permutation over byte positions (or
// block positions). It is generated deterministically from a 32-byte seed,
// so a seed is all that needs to be stored or exchanged.
type Permutation []uint8

// GeneratePermutation derives a permutation of the given size (< 256) from
// seed using a Fisher-Yates shuffle driven by a ChaCha20 keystream.
func GeneratePermutation(seed *[32]byte, size int) Permutation {
	prg := newPRG(seed)

	p := make(Permutation, size)
	for i := range p {
		p[i] = uint8(i)
	}
	for i := size - 1; i >= 0; i-- {
		j := prg.intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}

	return p
}

// Size returns the number of positions the permutation acts on.
func (p Permutation) Size() int { return len(p) }

// Complement finds the permutation c such that applying target and then c
// is equivalent to applying p. This is the building block of proxy key
// sets: the complement translates between two parties' permutations without
// revealing either.
func (p Permutation) Complement(target Permutation) Permutation {
	out := make(Permutation, len(p))
	for i, a := range target {
		for j, b := range p {
			if a == b {
				out[j] = uint8(i)
				break
			}
		}
	}
	return out
}

// Apply permutes input in place. input must be exactly Size() long.
func (p Permutation) Apply(input []byte) {
	permuteSlice(p, input)
}

// Invert un-permutes input in place. input must be exactly Size() long.
func (p Permutation) Invert(input []byte) {
	invertSlice(p, input)
}

// permuteSlice applies p to input in place using position chasing: a target
// position below the cursor has already been displaced, so it is followed
// through the permutation until it resolves to a live slot.
func permuteSlice[T any](p Permutation, input []T) {
	if len(p) != len(input) {
		panic(fmt.Sprintf("recrypt: slice length %d does not match permutation size %d", len(input), len(p)))
	}

	for i, perm := range p {
		index := int(perm)
		for index < i {
			index = int(p[index])
		}
		input[i], input[index] = input[index], input[i]
	}
}

// invertSlice applies the inverse of p to input in place.
func invertSlice[T any](p Permutation, input []T) {
	if len(p) != len(input) {
		panic(fmt.Sprintf("recrypt: slice length %d does not match permutation size %d", len(input), len(p)))
	}

	buf := make([]T, len(input))
	for i, perm := range p {
		buf[perm] = input[i]
	}
	copy(input, buf)
}

// prg is a deterministic random generator over a ChaCha20 keystream, used
// only for seed-to-permutation expansion.
type prg struct {
	cipher *chacha20.Cipher
}

func newPRG(seed *[32]byte) *prg {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		// Key and nonce sizes are fixed at compile time.
		panic(err)
	}
	return &prg{cipher: c}
}

// next64 returns the next 8 keystream bytes as a uint64.
func (g *prg) next64() uint64 {
	var buf [8]byte
	g.cipher.XORKeyStream(buf[:], buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// intn returns a uniform value in [0, n) using rejection sampling so the
// shuffle stays unbiased.
func (g *prg) intn(n int) int {
	bound := uint64(n)
	limit := (^uint64(0) / bound) * bound
	for {
		v := g.next64()
		if v < limit {
			return int(v % bound)
		}
	}
}
