// SPDX-License-Identifier: Apache-2.0

// Package crypto implements the sealing pipeline: classifying record
// attributes, encrypting protected values under per-record data keys, and
// the lazy decrypting view over a stored item.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/sealkv/sealkv/recrypt"
)

// GeneratedKey is the key service's answer to a generate request: the IV
// and tag needed to retrieve the same key material later, and the
// re-encrypted material itself.
type GeneratedKey struct {
	Iv       recrypt.Iv
	Material []byte
	Tag      []byte
}

// KeySource issues per-record key material. The production implementation
// is the remote key service client; tests substitute a deterministic one.
// Calls may block on network I/O and must honour the context.
type KeySource interface {
	GenerateKey(ctx context.Context, descriptor string) (GeneratedKey, error)
	RetrieveKey(ctx context.Context, iv recrypt.Iv, descriptor string, tag []byte) ([]byte, error)
}

// ScopedCipher encrypts attribute payloads under data keys derived from
// service-issued key material, scoped by descriptor. It holds no per-call
// state and is safe for concurrent use; every seal derives its own key.
type ScopedCipher struct {
	keys   KeySource
	proxy  *recrypt.ProxyKeySet
	macKey [32]byte
}

// NewScopedCipher builds a cipher over the client's proxy key set. The
// root key feeds the keyed MAC used for encrypted primary keys and term
// keys; it never leaves the process.
func NewScopedCipher(keys KeySource, proxy *recrypt.ProxyKeySet, rootKey [32]byte) *ScopedCipher {
	c := &ScopedCipher{keys: keys, proxy: proxy}
	mac := hmac.New(sha256.New, rootKey[:])
	mac.Write([]byte("sealkv/mac"))
	copy(c.macKey[:], mac.Sum(nil))
	return c
}

// Encrypt seals one attribute payload under a fresh data key scoped to
// descriptor. The descriptor is bound into the ciphertext as AAD, so an
// envelope moved to another attribute fails authentication.
func (c *ScopedCipher) Encrypt(ctx context.Context, descriptor string, plaintext []byte) (Envelope, error) {
	generated, err := c.keys.GenerateKey(ctx, descriptor)
	if err != nil {
		return Envelope{}, fmt.Errorf("generate data key for %q: %w", descriptor, err)
	}

	key, err := recrypt.DeriveDataKey(c.proxy, generated.Iv, generated.Material)
	if err != nil {
		return Envelope{}, fmt.Errorf("derive data key for %q: %w", descriptor, err)
	}

	aead, err := newAead(key)
	if err != nil {
		return Envelope{}, err
	}

	nonce := generated.Iv[:aead.NonceSize()]
	ciphertext := aead.Seal(nil, nonce, plaintext, []byte(descriptor))

	return Envelope{
		Iv:         generated.Iv,
		Descriptor: descriptor,
		Tag:        generated.Tag,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt re-derives the envelope's data key through the key service and
// opens the payload.
func (c *ScopedCipher) Decrypt(ctx context.Context, env Envelope) ([]byte, error) {
	material, err := c.keys.RetrieveKey(ctx, env.Iv, env.Descriptor, env.Tag)
	if err != nil {
		return nil, fmt.Errorf("retrieve data key for %q: %w", env.Descriptor, err)
	}

	key, err := recrypt.DeriveDataKey(c.proxy, env.Iv, material)
	if err != nil {
		return nil, fmt.Errorf("derive data key for %q: %w", env.Descriptor, err)
	}

	aead, err := newAead(key)
	if err != nil {
		return nil, err
	}

	nonce := env.Iv[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, env.Ciphertext, []byte(env.Descriptor))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDecrypt, env.Descriptor)
	}
	return plaintext, nil
}

// Mac produces a deterministic keyed digest of value, optionally bound to
// a salt. Used for encrypted primary keys and term sort keys, where the
// same input must always map to the same stored key.
func (c *ScopedCipher) Mac(value string, salt string) []byte {
	mac := hmac.New(sha256.New, c.macKey[:])
	if salt != "" {
		mac.Write([]byte(salt))
		mac.Write([]byte{0})
	}
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

func newAead(key recrypt.Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create attribute cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create attribute cipher: %w", err)
	}
	return aead, nil
}
