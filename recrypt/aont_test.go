package recrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAont_RoundTrip(t *testing.T) {
	iv := Block(randomIv(t))
	msg := randomMessage(t)

	blocks, err := aont(&iv, msg)
	require.NoError(t, err)
	require.Len(t, blocks, keyMaterialBlocks+1)

	out, err := deont(blocks)
	require.NoError(t, err)
	assert.Equal(t, msg, out)
}

func TestAont_RejectsPartialBlocks(t *testing.T) {
	iv := Block(randomIv(t))

	_, err := aont(&iv, make([]byte, BlockSize+1))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = deont([]Block{{}})
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestSplitBlocks(t *testing.T) {
	blocks, err := splitBlocks(make([]byte, 3*BlockSize))
	require.NoError(t, err)
	assert.Len(t, blocks, 3)

	_, err = splitBlocks(make([]byte, 3*BlockSize-1))
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	assert.Equal(t, make([]byte, 3*BlockSize), joinBlocks(blocks))
}
