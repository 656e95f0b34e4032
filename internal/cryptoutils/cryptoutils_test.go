package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAPIKey(t *testing.T) {
	key := XApiKey()
	require.Len(t, key, 43)
	require.NotEqual(t, key, XApiKey())

	hash, err := HashAPIKey(key)
	require.NoError(t, err)
	require.NoError(t, CompareHashAndKey(hash, key))
	require.Error(t, CompareHashAndKey(hash, key+"x"))
}

func TestEqual(t *testing.T) {
	require.True(t, Equal("secret", "secret"))
	require.False(t, Equal("secret", "secreT"))
	require.False(t, Equal("secret", ""))
}

func TestSha256(t *testing.T) {
	require.Equal(t, Sha256("a"), Sha256("a"))
	require.NotEqual(t, Sha256("a"), Sha256("b"))
}
