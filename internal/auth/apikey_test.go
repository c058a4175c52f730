package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKey_GenerateHashCheck(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "cfk_"))

	hash, err := HashAPIKey(key)
	require.NoError(t, err)
	assert.NotEqual(t, key, hash)

	assert.True(t, CheckAPIKey(hash, key))
	assert.False(t, CheckAPIKey(hash, key+"tampered"))
}

func TestAPIKey_Unique(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
