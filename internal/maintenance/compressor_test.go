package maintenance

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZstdCompressor_RoundTrip(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	payload := bytes.Repeat([]byte(`{"content":"hey there 😍","sender":"fan"},`), 200)
	compressed, err := c.Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	out, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestZstdCompressor_RejectsGarbage(t *testing.T) {
	c, err := NewZstdCompressor()
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress([]byte("definitely not zstd"))
	assert.Error(t, err)
}

func TestNewCompressorProvider_Cleanup(t *testing.T) {
	c, cleanup, err := NewCompressorProvider()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.NotPanics(t, cleanup)
}
