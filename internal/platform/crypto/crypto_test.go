package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 64 hex chars = 32 bytes = valid AES-256 key
const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNew_EmptyKeyIsNoop(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Noop{}, s)
}

func TestNew_WithKey(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	assert.IsType(t, &AESGCM{}, s)
}

func TestNewAESGCM_InvalidHex(t *testing.T) {
	s, err := NewAESGCM("zzzz")
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestNewAESGCM_WrongKeyLength(t *testing.T) {
	tests := []struct {
		name   string
		hexKey string
	}{
		{"too short (31 bytes)", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"},
		{"too long (33 bytes)", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef00"},
		{"16 bytes", "0123456789abcdef0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewAESGCM(tt.hexKey)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewAESGCM(testKey)
	require.NoError(t, err)

	plaintext := []byte(`{"refresh_token":"secret"}`)

	sealed, err := s.Seal(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)
	assert.Greater(t, len(sealed), len(plaintext))

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSeal_UniqueNonces(t *testing.T) {
	s, err := NewAESGCM(testKey)
	require.NoError(t, err)

	a, err := s.Seal([]byte("same-value"))
	require.NoError(t, err)
	b, err := s.Seal([]byte("same-value"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_TooShort(t *testing.T) {
	s, err := NewAESGCM(testKey)
	require.NoError(t, err)

	_, err = s.Open([]byte("short"))
	assert.Error(t, err)
}

func TestOpen_Tampered(t *testing.T) {
	s, err := NewAESGCM(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("token"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open(sealed)
	assert.Error(t, err)
}

func TestOpen_WrongKey(t *testing.T) {
	s1, err := NewAESGCM(testKey)
	require.NoError(t, err)
	s2, err := NewAESGCM("fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210")
	require.NoError(t, err)

	sealed, err := s1.Seal([]byte("token"))
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	sealed, err := Noop{}.Seal([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), sealed)

	opened, err := Noop{}.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), opened)
}
