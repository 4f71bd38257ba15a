package vault

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	v, err := NewFromKeySource(key)
	require.NoError(t, err)
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := testVault(t)
	for _, plaintext := range []string{"sk-abcdefghijklmnop", "short", "", "a very long bearer token with spaces and punctuation!"} {
		ciphertext, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		if plaintext == "" {
			assert.Equal(t, "", ciphertext)
			continue
		}
		assert.NotEqual(t, plaintext, ciphertext)

		decrypted, err := v.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	v1 := testVault(t)
	v2 := testVault(t)

	ciphertext, err := v1.Encrypt("sk-abcdefghijklmnop")
	require.NoError(t, err)

	_, err = v2.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrTamperedCiphertext)
}

func TestDecryptCorruptedCiphertextFails(t *testing.T) {
	v := testVault(t)
	ciphertext, err := v.Encrypt("sk-abcdefghijklmnop")
	require.NoError(t, err)

	corrupted := ciphertext[:len(ciphertext)-4] + "abcd"
	_, err = v.Decrypt(corrupted)
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "****", Mask("1234567"))
	assert.Equal(t, "sk-a...mnop", Mask("sk-abcdefghijklmnop"))
}

func TestLoadOrGenerateKeyUsesEnvWhenPresent(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	t.Setenv("HUB_SECRET_KEY_TEST", key)

	v, err := LoadOrGenerateKey("HUB_SECRET_KEY_TEST", filepath.Join(t.TempDir(), ".env"), slog.Default())
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("sk-abcdefghijklmnop")
	require.NoError(t, err)
	decrypted, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sk-abcdefghijklmnop", decrypted)
}

func TestLoadOrGenerateKeyGeneratesAndPersists(t *testing.T) {
	os.Unsetenv("HUB_SECRET_KEY_TEST2")
	envFile := filepath.Join(t.TempDir(), ".env")

	_, err := LoadOrGenerateKey("HUB_SECRET_KEY_TEST2", envFile, slog.Default())
	require.NoError(t, err)

	contents, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "HUB_SECRET_KEY_TEST2=")
	assert.NotEmpty(t, os.Getenv("HUB_SECRET_KEY_TEST2"))
}
