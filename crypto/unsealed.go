// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sealkv/sealkv/models"
)

// Unsealed is the decrypting view over one stored item. Protected values
// are decrypted on first access and cached; attributes absent from
// storage come back as their type's null-equivalent, never as an error.
// Unsealed is safe for concurrent use.
type Unsealed struct {
	cipher *ScopedCipher
	cls    Classification

	protected map[string]Envelope
	plain     map[string]models.TableValue

	mu    sync.Mutex
	cache map[string]models.Plaintext
}

// Unseal opens a stored attribute map under its classification. Envelope
// parsing happens up front so a corrupt item fails here rather than on
// some later attribute access.
func (s *Sealer) Unseal(item map[string]models.TableValue, cls Classification) (*Unsealed, error) {
	if err := cls.Validate(); err != nil {
		return nil, err
	}

	u := &Unsealed{
		cipher:    s.cipher,
		cls:       cls,
		protected: make(map[string]Envelope),
		plain:     make(map[string]models.TableValue),
		cache:     make(map[string]models.Plaintext),
	}

	for name, value := range item {
		if name == models.PartitionKeyAttr || name == models.SortKeyAttr || name == models.TermAttr {
			continue
		}

		base := name
		if i := strings.Index(name, FlattenDelimiter); i >= 0 {
			base = name[:i]
		}

		if cls.IsProtected(base) {
			raw, ok := value.AsBytes()
			if !ok {
				return nil, fmt.Errorf("attribute %q: %w: expected ciphertext bytes", name, ErrTypeMismatch)
			}
			env, err := DecodeEnvelope(raw)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			u.protected[name] = env
			continue
		}

		u.plain[name] = value
	}

	return u, nil
}

// Protected decrypts and returns the named attribute, verifying it holds
// the requested kind. An absent attribute yields the kind's null value; a
// kind mismatch is an error naming the attribute.
func (u *Unsealed) Protected(ctx context.Context, name string, kind models.PlaintextKind) (models.Plaintext, error) {
	u.mu.Lock()
	cached, ok := u.cache[name]
	u.mu.Unlock()

	if !ok {
		env, present := u.protected[name]
		if !present {
			return models.Null(kind), nil
		}

		decrypted, err := u.cipher.Decrypt(ctx, env)
		if err != nil {
			return models.Plaintext{}, fmt.Errorf("attribute %q: %w", name, err)
		}

		cached, err = models.DecodePlaintext(decrypted)
		if err != nil {
			return models.Plaintext{}, fmt.Errorf("attribute %q: %w", name, err)
		}

		u.mu.Lock()
		u.cache[name] = cached
		u.mu.Unlock()
	}

	if cached.Kind() != kind {
		return models.Plaintext{}, fmt.Errorf("attribute %q: %w: stored %s, requested %s",
			name, ErrTypeMismatch, cached.Kind(), kind)
	}
	return cached, nil
}

// ProtectedMap re-aggregates a flattened map attribute: every stored
// "name.key" sub-attribute is decrypted and keyed by its inner key. An
// absent map yields an empty map.
func (u *Unsealed) ProtectedMap(ctx context.Context, name string) (map[string]models.Plaintext, error) {
	out := make(map[string]models.Plaintext)
	prefix := name + FlattenDelimiter

	for stored := range u.protected {
		if !strings.HasPrefix(stored, prefix) {
			continue
		}

		env := u.protected[stored]
		decrypted, err := u.cipher.Decrypt(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", stored, err)
		}
		value, err := models.DecodePlaintext(decrypted)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", stored, err)
		}
		out[strings.TrimPrefix(stored, prefix)] = value
	}
	return out, nil
}

// Plain returns an unprotected attribute's stored value. Absent
// attributes yield the null table value.
func (u *Unsealed) Plain(name string) models.TableValue {
	if v, ok := u.plain[name]; ok {
		return v
	}
	return models.NullValue()
}

// String returns a protected string attribute, or "" with ok=false when
// the stored value is null.
func (u *Unsealed) String(ctx context.Context, name string) (string, bool, error) {
	p, err := u.Protected(ctx, name, models.KindString)
	if err != nil {
		return "", false, err
	}
	v, ok := p.AsString()
	return v, ok, nil
}

// BigInt returns a protected 64-bit integer attribute.
func (u *Unsealed) BigInt(ctx context.Context, name string) (int64, bool, error) {
	p, err := u.Protected(ctx, name, models.KindBigInt)
	if err != nil {
		return 0, false, err
	}
	v, ok := p.AsBigInt()
	return v, ok, nil
}

// Bool returns a protected boolean attribute.
func (u *Unsealed) Bool(ctx context.Context, name string) (bool, bool, error) {
	p, err := u.Protected(ctx, name, models.KindBool)
	if err != nil {
		return false, false, err
	}
	v, ok := p.AsBool()
	return v, ok, nil
}

// Float returns a protected floating-point attribute.
func (u *Unsealed) Float(ctx context.Context, name string) (float64, bool, error) {
	p, err := u.Protected(ctx, name, models.KindFloat)
	if err != nil {
		return 0, false, err
	}
	v, ok := p.AsFloat()
	return v, ok, nil
}

// Timestamp returns a protected timestamp attribute.
func (u *Unsealed) Timestamp(ctx context.Context, name string) (time.Time, bool, error) {
	p, err := u.Protected(ctx, name, models.KindTimestamp)
	if err != nil {
		return time.Time{}, false, err
	}
	v, ok := p.AsTimestamp()
	return v, ok, nil
}
