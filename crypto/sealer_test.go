package crypto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkv/sealkv/indexer"
	"github.com/sealkv/sealkv/models"
	"github.com/sealkv/sealkv/recrypt"
)

// fakeKeySource plays the key service in-process: it encrypts fresh key
// material under a server key set and hands back material the client's
// proxy key set can re-encrypt, remembering issued keys so retrieval
// reproduces generation.
type fakeKeySource struct {
	cipher *recrypt.SymmetricCipher

	mu     sync.Mutex
	next   uint64
	issued map[string]GeneratedKey

	generateErr error
	retrieveErr error
}

func newFakeKeySource(t *testing.T) (*fakeKeySource, *recrypt.ProxyKeySet) {
	t.Helper()

	server, err := recrypt.GenerateKeySet()
	require.NoError(t, err)
	client, err := recrypt.GenerateKeySet()
	require.NoError(t, err)

	src := &fakeKeySource{
		cipher: recrypt.NewSymmetricCipher(server),
		issued: make(map[string]GeneratedKey),
	}
	return src, recrypt.NewProxyKeySet(server, client)
}

func (f *fakeKeySource) GenerateKey(_ context.Context, descriptor string) (GeneratedKey, error) {
	if f.generateErr != nil {
		return GeneratedKey{}, f.generateErr
	}

	iv, err := recrypt.GenerateIv()
	if err != nil {
		return GeneratedKey{}, err
	}
	message := make([]byte, recrypt.KeyMaterialSize)
	if _, err := io.ReadFull(rand.Reader, message); err != nil {
		return GeneratedKey{}, err
	}
	material, err := f.cipher.Encrypt(iv, message)
	if err != nil {
		return GeneratedKey{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	tag := binary.BigEndian.AppendUint64(nil, f.next)
	key := GeneratedKey{Iv: iv, Material: material, Tag: tag}
	f.issued[issueKey(iv, descriptor, tag)] = key
	return key, nil
}

func (f *fakeKeySource) RetrieveKey(_ context.Context, iv recrypt.Iv, descriptor string, tag []byte) ([]byte, error) {
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.issued[issueKey(iv, descriptor, tag)]
	if !ok {
		return nil, fmt.Errorf("unknown key for descriptor %q", descriptor)
	}
	return key.Material, nil
}

func issueKey(iv recrypt.Iv, descriptor string, tag []byte) string {
	return fmt.Sprintf("%x/%s/%x", iv, descriptor, tag)
}

func newTestSealer(t *testing.T) (*Sealer, *fakeKeySource) {
	t.Helper()

	src, proxy := newFakeKeySource(t)
	var rootKey [32]byte
	copy(rootKey[:], "test-root-key-material-32-bytes!")

	cipher := NewScopedCipher(src, proxy, rootKey)
	return NewSealer(cipher, indexer.NewIndexer(rootKey)), src
}

func userClassification(t *testing.T) Classification {
	t.Helper()

	emailName, err := indexer.NewIndex("email#name",
		indexer.FieldSpec{Name: "email", Mode: indexer.ModeExact},
		indexer.FieldSpec{Name: "name", Mode: indexer.ModePrefix},
	)
	require.NoError(t, err)

	return Classification{
		Protected: []string{"email", "name", "age"},
		Plaintext: []string{"created"},
		Skipped:   []string{"session"},
		Indexes:   []indexer.Index{emailName},
	}
}

func TestSealUnseal_RoundTrip(t *testing.T) {
	sealer, _ := newTestSealer(t)
	ctx := context.Background()

	record := Record{
		"email":   models.NewString("dan@x.co"),
		"name":    models.NewString("Dan Draper"),
		"age":     models.NewBigInt(42),
		"created": models.NewString("2023-02-03"),
		"session": models.NewString("ephemeral"),
	}

	sealed, err := sealer.Seal(ctx, record, userClassification(t), "users")
	require.NoError(t, err)

	// Skipped attributes never reach storage; ciphertext never equals
	// the plaintext encoding.
	assert.NotContains(t, sealed.Attributes, "session")
	raw, ok := sealed.Attributes["email"].AsBytes()
	require.True(t, ok)
	assert.NotContains(t, string(raw), "dan@x.co")

	unsealed, err := sealer.Unseal(sealed.Attributes, userClassification(t))
	require.NoError(t, err)

	email, present, err := unsealed.String(ctx, "email")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "dan@x.co", email)

	age, present, err := unsealed.BigInt(ctx, "age")
	require.NoError(t, err)
	assert.True(t, present)
	assert.EqualValues(t, 42, age)

	created, ok := unsealed.Plain("created").AsString()
	require.True(t, ok)
	assert.Equal(t, "2023-02-03", created)

	// The skipped attribute comes back as the null-equivalent.
	_, present, err = unsealed.String(ctx, "session")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestSealUnseal_AllKinds(t *testing.T) {
	sealer, _ := newTestSealer(t)
	ctx := context.Background()

	when := time.Date(2023, 2, 3, 10, 30, 0, 0, time.UTC)
	record := Record{
		"s":  models.NewString("hello"),
		"b":  models.NewBool(true),
		"i":  models.NewBigInt(-7),
		"f":  models.NewFloat(3.5),
		"ts": models.NewTimestamp(when),
		"n":  models.Null(models.KindString),
	}
	cls := Classification{Protected: []string{"s", "b", "i", "f", "ts", "n"}}

	sealed, err := sealer.Seal(ctx, record, cls, "things")
	require.NoError(t, err)
	unsealed, err := sealer.Unseal(sealed.Attributes, cls)
	require.NoError(t, err)

	s, present, err := unsealed.String(ctx, "s")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "hello", s)

	b, present, err := unsealed.Bool(ctx, "b")
	require.NoError(t, err)
	assert.True(t, present)
	assert.True(t, b)

	i, present, err := unsealed.BigInt(ctx, "i")
	require.NoError(t, err)
	assert.True(t, present)
	assert.EqualValues(t, -7, i)

	f, present, err := unsealed.Float(ctx, "f")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, 3.5, f)

	ts, present, err := unsealed.Timestamp(ctx, "ts")
	require.NoError(t, err)
	assert.True(t, present)
	assert.True(t, when.Equal(ts))

	// A sealed null stays typed and comes back null, not missing or
	// mistyped.
	_, present, err = unsealed.String(ctx, "n")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestUnseal_TypeMismatch(t *testing.T) {
	sealer, _ := newTestSealer(t)
	ctx := context.Background()

	cls := Classification{Protected: []string{"age"}}
	sealed, err := sealer.Seal(ctx, Record{"age": models.NewBigInt(42)}, cls, "users")
	require.NoError(t, err)

	unsealed, err := sealer.Unseal(sealed.Attributes, cls)
	require.NoError(t, err)

	_, _, err = unsealed.String(ctx, "age")
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "age")
}

func TestSealUnseal_MapFlattening(t *testing.T) {
	sealer, _ := newTestSealer(t)
	ctx := context.Background()

	cls := Classification{Protected: []string{"meta"}}
	record := Record{
		"meta": models.NewMap(map[string]models.Plaintext{
			"plan":   models.NewString("pro"),
			"logins": models.NewBigInt(12),
		}),
	}

	sealed, err := sealer.Seal(ctx, record, cls, "users")
	require.NoError(t, err)
	assert.Contains(t, sealed.Attributes, "meta.plan")
	assert.Contains(t, sealed.Attributes, "meta.logins")

	unsealed, err := sealer.Unseal(sealed.Attributes, cls)
	require.NoError(t, err)

	meta, err := unsealed.ProtectedMap(ctx, "meta")
	require.NoError(t, err)
	require.Len(t, meta, 2)
	plan, _ := meta["plan"].AsString()
	assert.Equal(t, "pro", plan)
	logins, _ := meta["logins"].AsBigInt()
	assert.EqualValues(t, 12, logins)
}

func TestSeal_FlattenCollision(t *testing.T) {
	sealer, _ := newTestSealer(t)

	cls := Classification{Protected: []string{"meta", "metaplan"}}
	record := Record{
		"meta": models.NewMap(map[string]models.Plaintext{
			"plan": models.NewString("pro"),
		}),
		"meta.plan": models.NewString("collides"),
	}

	_, err := sealer.Seal(context.Background(), record, cls, "users")
	assert.ErrorIs(t, err, ErrAttributeCollision)
}

func TestClassification_Validate(t *testing.T) {
	idx, err := indexer.NewIndex("missing",
		indexer.FieldSpec{Name: "ghost", Mode: indexer.ModeExact})
	require.NoError(t, err)

	err = Classification{
		Protected: []string{"email"},
		Indexes:   []indexer.Index{idx},
	}.Validate()
	assert.ErrorIs(t, err, ErrMissingAttribute)

	err = Classification{Protected: []string{models.PartitionKeyAttr}}.Validate()
	assert.ErrorIs(t, err, ErrReservedAttribute)

	err = Classification{Protected: []string{"a.b"}}.Validate()
	assert.ErrorIs(t, err, ErrAttributeCollision)

	err = Classification{Protected: []string{"email"}, Plaintext: []string{"email"}}.Validate()
	assert.Error(t, err)

	skippedIdx, err := indexer.NewIndex("skipped",
		indexer.FieldSpec{Name: "session", Mode: indexer.ModeExact})
	require.NoError(t, err)
	err = Classification{
		Skipped: []string{"session"},
		Indexes: []indexer.Index{skippedIdx},
	}.Validate()
	assert.ErrorIs(t, err, ErrMissingAttribute)
}

func TestSeal_NullIndexedField(t *testing.T) {
	sealer, _ := newTestSealer(t)

	record := Record{
		"email": models.NewString("dan@x.co"),
		// name is absent entirely.
	}

	sealed, err := sealer.Seal(context.Background(), record, userClassification(t), "users")
	require.NoError(t, err)
	require.Len(t, sealed.Terms, 1)
	assert.True(t, sealed.Terms[0].Term.IsNull())
}

func TestSeal_KeyServiceFailureAborts(t *testing.T) {
	sealer, src := newTestSealer(t)
	src.generateErr = fmt.Errorf("service unavailable")

	_, err := sealer.Seal(context.Background(), Record{
		"email": models.NewString("dan@x.co"),
	}, Classification{Protected: []string{"email"}}, "users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestSealAll(t *testing.T) {
	sealer, _ := newTestSealer(t)
	cls := Classification{Protected: []string{"email"}}

	records := []Record{
		{"email": models.NewString("a@x.co")},
		{"email": models.NewString("b@x.co")},
	}
	sealed, err := sealer.SealAll(context.Background(), records, cls, "users")
	require.NoError(t, err)
	require.Len(t, sealed, 2)
	assert.NotEqual(t, sealed[0].Attributes["email"], sealed[1].Attributes["email"])
}

func TestScopedCipher_DescriptorBinding(t *testing.T) {
	src, proxy := newFakeKeySource(t)
	var rootKey [32]byte
	cipher := NewScopedCipher(src, proxy, rootKey)
	ctx := context.Background()

	env, err := cipher.Encrypt(ctx, "users/email", []byte("payload"))
	require.NoError(t, err)

	out, err := cipher.Decrypt(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)

	// Moving the envelope to another descriptor must fail
	// authentication, not silently decrypt.
	moved := env
	moved.Descriptor = "users/name"
	_, err = cipher.Decrypt(ctx, moved)
	require.Error(t, err)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := Envelope{
		Descriptor: "users/email",
		Tag:        []byte{9, 9, 9},
		Ciphertext: []byte("ciphertext bytes"),
	}
	copy(env.Iv[:], "0123456789abcdef")

	decoded, err := DecodeEnvelope(env.Encode())
	require.NoError(t, err)
	assert.Equal(t, env, decoded)

	_, err = DecodeEnvelope([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	bad := env.Encode()
	bad[0] = 99
	_, err = DecodeEnvelope(bad)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}
