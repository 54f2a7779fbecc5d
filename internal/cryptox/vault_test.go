package cryptox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(bytes.Repeat([]byte{0x42}, KeySize))
	require.NoError(t, err)
	return v
}

func TestNewVault_KeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33} {
		_, err := NewVault(make([]byte, n))
		assert.ErrorIs(t, err, common.ErrConfig, "len=%d", n)
	}
}

func TestNewVaultFromHex(t *testing.T) {
	_, err := NewVaultFromHex("")
	assert.ErrorIs(t, err, common.ErrConfig)

	_, err = NewVaultFromHex("zz")
	assert.ErrorIs(t, err, common.ErrConfig)

	v, err := NewVaultFromHex(GenerateKeyHex())
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestGenerateKeyHex(t *testing.T) {
	k := GenerateKeyHex()
	raw, err := hex.DecodeString(k)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)
	assert.NotEqual(t, k, GenerateKeyHex())
}

func TestEncryptDecrypt_RoundTripExact(t *testing.T) {
	v := newTestVault(t)
	vec := []float32{0.25, -1.5, 3.1415927, 0, 1e-7, -0.0001}

	blob, err := v.Encrypt(vec)
	require.NoError(t, err)

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	v := newTestVault(t)
	vec := []float32{1, 2, 3}

	a, err := v.Encrypt(vec)
	require.NoError(t, err)
	b, err := v.Encrypt(vec)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEncrypt_EmptyVector(t *testing.T) {
	_, err := newTestVault(t).Encrypt(nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDecrypt_EverySingleBitFlipFails(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt([]float32{0.5, 0.25, -0.125, 8})
	require.NoError(t, err)

	for i := 0; i < len(blob); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 1 << bit

			got, err := v.Decrypt(tampered)
			if !errors.Is(err, common.ErrIntegrity) {
				t.Fatalf("byte %d bit %d: want ErrIntegrity, got %v (vec=%v)", i, bit, err, got)
			}
			if got != nil {
				t.Fatalf("byte %d bit %d: tampered blob returned data", i, bit)
			}
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	blob, err := newTestVault(t).Encrypt([]float32{1, 2})
	require.NoError(t, err)

	other, err := NewVault(bytes.Repeat([]byte{0x07}, KeySize))
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	assert.ErrorIs(t, err, common.ErrIntegrity)
}

func TestDecrypt_Malformed(t *testing.T) {
	v := newTestVault(t)
	for _, blob := range [][]byte{nil, {}, []byte("not cbor at all"), {0xa0}} {
		_, err := v.Decrypt(blob)
		assert.ErrorIs(t, err, common.ErrIntegrity)
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt([]float32{1, 2, 3, 4})
	require.NoError(t, err)

	for n := 0; n < len(blob); n++ {
		_, err := v.Decrypt(blob[:n])
		require.ErrorIs(t, err, common.ErrIntegrity, "truncated to %d", n)
	}
}
