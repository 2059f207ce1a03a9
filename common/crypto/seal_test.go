package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeal_UnsealRoundTripsOriginalMap(t *testing.T) {
	sealer, err := NewSealer("a-test-encryption-key")
	require.NoError(t, err)

	creds := map[string]any{
		"access_token":  "at-123",
		"refresh_token": "rt-456",
		"scopes":        []any{"a", "b"},
	}

	sealed, err := sealer.Seal(creds)
	require.NoError(t, err)

	unsealed, err := sealer.Unseal(sealed)
	require.NoError(t, err)

	assert.Equal(t, creds, unsealed)
}

func TestSeal_ProducesDifferentCiphertextEachCall(t *testing.T) {
	sealer, err := NewSealer("a-test-encryption-key")
	require.NoError(t, err)

	creds := map[string]any{"access_token": "at-123"}

	first, err := sealer.Seal(creds)
	require.NoError(t, err)
	second, err := sealer.Seal(creds)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "nonce must differ between calls")

	firstUnsealed, err := sealer.Unseal(first)
	require.NoError(t, err)
	secondUnsealed, err := sealer.Unseal(second)
	require.NoError(t, err)
	assert.Equal(t, firstUnsealed, secondUnsealed)
}

func TestUnseal_RejectsTruncatedInput(t *testing.T) {
	sealer, err := NewSealer("a-test-encryption-key")
	require.NoError(t, err)

	_, err = sealer.Unseal([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestUnseal_RejectsTamperedCiphertext(t *testing.T) {
	sealer, err := NewSealer("a-test-encryption-key")
	require.NoError(t, err)

	sealed, err := sealer.Seal(map[string]any{"access_token": "at-123"})
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = sealer.Unseal(tampered)
	assert.Error(t, err)
}

func TestNewSealer_DifferentKeyMaterialCannotUnsealEachOther(t *testing.T) {
	a, err := NewSealer("key-a")
	require.NoError(t, err)
	b, err := NewSealer("key-b")
	require.NoError(t, err)

	sealed, err := a.Seal(map[string]any{"access_token": "at-123"})
	require.NoError(t, err)

	_, err = b.Unseal(sealed)
	assert.Error(t, err)
}
