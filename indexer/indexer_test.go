package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealkv/sealkv/models"
)

func testIndexer() *Indexer {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	return NewIndexer(key)
}

func exactIndex(t *testing.T, name, field string) Index {
	t.Helper()
	idx, err := NewIndex(name, FieldSpec{Name: field, Mode: ModeExact})
	require.NoError(t, err)
	return idx
}

func prefixIndex(t *testing.T, name, field string) Index {
	t.Helper()
	idx, err := NewIndex(name, FieldSpec{Name: field, Mode: ModePrefix})
	require.NoError(t, err)
	return idx
}

func compositeOf(t *testing.T, values ...models.Plaintext) Composite {
	t.Helper()
	c, err := CompositeOf(values...)
	require.NoError(t, err)
	return c
}

func TestNewIndex_Validation(t *testing.T) {
	_, err := NewIndex("empty")
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = NewIndex("wide",
		FieldSpec{Name: "a", Mode: ModeExact},
		FieldSpec{Name: "b", Mode: ModeExact},
		FieldSpec{Name: "c", Mode: ModeExact},
	)
	assert.ErrorIs(t, err, ErrTooManyFields)

	_, err = NewIndex("dup",
		FieldSpec{Name: "a", Mode: ModeExact},
		FieldSpec{Name: "a", Mode: ModeExact},
	)
	assert.ErrorIs(t, err, ErrDuplicateField)

	_, err = NewIndex("prefix-first",
		FieldSpec{Name: "a", Mode: ModePrefix},
		FieldSpec{Name: "b", Mode: ModeExact},
	)
	assert.ErrorIs(t, err, ErrPrefixNotLast)

	idx, err := NewIndex("ok",
		FieldSpec{Name: "a", Mode: ModeExact},
		FieldSpec{Name: "b", Mode: ModePrefix},
	)
	require.NoError(t, err)
	assert.True(t, idx.Compound())
	assert.Equal(t, []string{"a", "b"}, idx.FieldNames())
}

func TestComposite_Arity(t *testing.T) {
	c := NewComposite()
	c, err := c.Push(models.NewString("a"))
	require.NoError(t, err)
	c, err = c.Push(models.NewString("b"))
	require.NoError(t, err)

	_, err = c.Push(models.NewString("c"))
	assert.ErrorIs(t, err, ErrTooManyFields)
	assert.Equal(t, 2, c.Len())
}

func TestTerm_ExactDeterministic(t *testing.T) {
	ix := testIndexer()
	idx := exactIndex(t, "user#email", "email")
	comp := compositeOf(t, models.NewString("dan@x.co"))

	t1, err := ix.Term(idx, comp)
	require.NoError(t, err)
	t2, err := ix.Term(idx, comp)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)
	assert.Equal(t, models.TermFull, t1.Kind())
}

func TestTerm_KeysDifferPerIndex(t *testing.T) {
	ix := testIndexer()
	comp := compositeOf(t, models.NewString("dan@x.co"))

	t1, err := ix.Term(exactIndex(t, "user#email", "email"), comp)
	require.NoError(t, err)
	t2, err := ix.Term(exactIndex(t, "audit#email", "email"), comp)
	require.NoError(t, err)
	assert.NotEqual(t, t1.Bytes(), t2.Bytes())
}

func TestTerm_NullValue(t *testing.T) {
	ix := testIndexer()

	term, err := ix.Term(exactIndex(t, "user#email", "email"),
		compositeOf(t, models.Null(models.KindString)))
	require.NoError(t, err)
	assert.True(t, term.IsNull())

	idx, err := NewIndex("user#email#name",
		FieldSpec{Name: "email", Mode: ModeExact},
		FieldSpec{Name: "name", Mode: ModePrefix},
	)
	require.NoError(t, err)

	term, err = ix.Term(idx, compositeOf(t,
		models.NewString("dan@x.co"), models.Null(models.KindString)))
	require.NoError(t, err)
	assert.True(t, term.IsNull())
}

func TestTerm_ArityMismatch(t *testing.T) {
	ix := testIndexer()
	idx := exactIndex(t, "user#email", "email")

	_, err := ix.Term(idx, compositeOf(t,
		models.NewString("a"), models.NewString("b")))
	assert.ErrorIs(t, err, ErrArity)

	_, err = ix.QueryTerm(idx, compositeOf(t))
	assert.ErrorIs(t, err, ErrArity)
}

func TestTerm_PrefixPositions(t *testing.T) {
	ix := testIndexer()
	idx := prefixIndex(t, "user#name", "name")

	stored, err := ix.Term(idx, compositeOf(t, models.NewString("dan draper")))
	require.NoError(t, err)
	require.Equal(t, models.TermArray, stored.Kind())
	entries := stored.Array()
	require.Len(t, entries, len("dan draper"))

	// The query term for any prefix is the stored entry at the prefix's
	// position.
	for _, p := range []string{"d", "dan", "dan dra"} {
		q, err := ix.QueryTerm(idx, compositeOf(t, models.NewString(p)))
		require.NoError(t, err)
		assert.Equal(t, entries[len(p)-1], q, "prefix %q", p)
	}

	// Case folding applies to queries too.
	q, err := ix.QueryTerm(idx, compositeOf(t, models.NewString("Dan")))
	require.NoError(t, err)
	assert.Equal(t, entries[2], q)
}

func TestTerm_PrefixCap(t *testing.T) {
	ix := testIndexer()
	idx := prefixIndex(t, "user#name", "name")

	long := strings.Repeat("a", MaxTermsPerIndex+10)
	stored, err := ix.Term(idx, compositeOf(t, models.NewString(long)))
	require.NoError(t, err)
	assert.Len(t, stored.Array(), MaxTermsPerIndex)
}

func TestTerm_PrefixRequiresString(t *testing.T) {
	ix := testIndexer()
	idx := prefixIndex(t, "user#count", "count")

	_, err := ix.Term(idx, compositeOf(t, models.NewBigInt(7)))
	assert.ErrorIs(t, err, ErrPrefixNotString)

	_, err = ix.QueryTerm(idx, compositeOf(t, models.NewBigInt(7)))
	assert.ErrorIs(t, err, ErrPrefixNotString)
}

func TestTerm_CompoundExactExact(t *testing.T) {
	ix := testIndexer()
	idx, err := NewIndex("user#email#verified",
		FieldSpec{Name: "email", Mode: ModeExact},
		FieldSpec{Name: "verified", Mode: ModeExact},
	)
	require.NoError(t, err)

	comp := compositeOf(t, models.NewString("dan@x.co"), models.NewBool(true))
	stored, err := ix.Term(idx, comp)
	require.NoError(t, err)
	assert.Equal(t, models.TermFull, stored.Kind())

	q, err := ix.QueryTerm(idx, comp)
	require.NoError(t, err)
	assert.Equal(t, stored.Bytes(), q)
}

func TestTerm_CompoundOrderSignificant(t *testing.T) {
	ix := testIndexer()

	ab, err := NewIndex("pair",
		FieldSpec{Name: "a", Mode: ModeExact},
		FieldSpec{Name: "b", Mode: ModeExact},
	)
	require.NoError(t, err)

	t1, err := ix.Term(ab, compositeOf(t, models.NewString("x"), models.NewString("y")))
	require.NoError(t, err)
	t2, err := ix.Term(ab, compositeOf(t, models.NewString("y"), models.NewString("x")))
	require.NoError(t, err)
	assert.NotEqual(t, t1.Bytes(), t2.Bytes())
}

func TestTerm_CompoundExactPrefix(t *testing.T) {
	ix := testIndexer()
	idx, err := NewIndex("user#email#name",
		FieldSpec{Name: "email", Mode: ModeExact},
		FieldSpec{Name: "name", Mode: ModePrefix},
	)
	require.NoError(t, err)

	stored, err := ix.Term(idx, compositeOf(t,
		models.NewString("dan@x.co"), models.NewString("Dan Draper")))
	require.NoError(t, err)
	require.Equal(t, models.TermArray, stored.Kind())
	entries := stored.Array()
	require.Len(t, entries, len("dan draper"))

	// Exact email and starts-with name resolve through one stored entry.
	q, err := ix.QueryTerm(idx, compositeOf(t,
		models.NewString("dan@x.co"), models.NewString("Dan")))
	require.NoError(t, err)
	assert.Equal(t, entries[2], q)

	// A different email never matches, whatever the name prefix.
	q, err = ix.QueryTerm(idx, compositeOf(t,
		models.NewString("eve@x.co"), models.NewString("Dan")))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, entry, q)
	}
}
