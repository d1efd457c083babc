package store

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEncryptionKey is a 32-byte key for AES-256
var testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")

func newEncryptingStore(key []byte) *Store {
	// Tests construct the Store directly; getGCM computes the cipher lazily
	return &Store{encryptionKey: key}
}

func TestEncrypt_Roundtrip(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple message", "Hello, I need help with my order"},
		{"empty string", ""},
		{"unicode content", "Здравствуйте! 你好 🙂"},
		{"long message", strings.Repeat("support ", 500)},
		{"special characters", `{"json": "payload", "quote": "\""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := s.encrypt(tt.plaintext)
			require.NoError(t, err)

			// Ciphertext must not leak the plaintext
			if tt.plaintext != "" {
				assert.NotContains(t, encrypted, tt.plaintext)
			}

			decrypted, err := s.decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncrypt_NoKeyPassthrough(t *testing.T) {
	s := newEncryptingStore(nil)

	encrypted, err := s.encrypt("plain message")
	require.NoError(t, err)
	assert.Equal(t, "plain message", encrypted)

	decrypted, err := s.decrypt("plain message")
	require.NoError(t, err)
	assert.Equal(t, "plain message", decrypted)
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	first, err := s.encrypt("same message")
	require.NoError(t, err)
	second, err := s.encrypt("same message")
	require.NoError(t, err)

	// Random nonce means identical plaintexts produce distinct ciphertexts
	assert.NotEqual(t, first, second)
}

func TestDecrypt_WrongKey(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	encrypted, err := s.encrypt("secret message")
	require.NoError(t, err)

	other := newEncryptingStore([]byte("ffffffffffffffffffffffffffffffff"))
	_, err = other.decrypt(encrypted)
	assert.Error(t, err)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	encrypted, err := s.encrypt("secret message")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)

	// Flip a bit in the ciphertext body (past the nonce)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = s.decrypt(tampered)
	assert.Error(t, err)
}

func TestDecrypt_InvalidInput(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "!!not-valid-base64!!"},
		{"too short", base64.StdEncoding.EncodeToString([]byte("abc"))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.decrypt(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestEncrypt_InvalidKeySize(t *testing.T) {
	s := newEncryptingStore([]byte("short-key"))

	_, err := s.encrypt("message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key size")
}

func TestDecryptOrOriginal_FallsBackOnUnencryptedContent(t *testing.T) {
	s := newEncryptingStore(testEncryptionKey)

	// Documents written before encryption was enabled stay readable
	assert.Equal(t, "legacy plaintext", s.decryptOrOriginal("legacy plaintext"))

	encrypted, err := s.encrypt("new message")
	require.NoError(t, err)
	assert.Equal(t, "new message", s.decryptOrOriginal(encrypted))
}
