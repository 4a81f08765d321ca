package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	path := SecretsPath(t.TempDir())
	secrets := map[string]string{
		EnvAnthropicAPIKey: "sk-ant-test123",
		EnvOddsAPIKey:      "odds-test",
	}

	require.NoError(t, EncryptSecretsFile(path, "test-password-12345", secrets))
	assert.True(t, SecretsFileExists(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(path, "test-password-12345")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptWithWrongPassword(t *testing.T) {
	path := SecretsPath(t.TempDir())
	require.NoError(t, EncryptSecretsFile(path, "correct", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(path, "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDecryptCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))
	_, err := DecryptSecretsFile(path, "pw")
	require.Error(t, err)
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv(EnvNewsAPIKey, "from-env")

	SetDecryptedSecrets(nil)
	value, err := GetSecret(EnvNewsAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	require.NoError(t, SetSecret(EnvNewsAPIKey, "from-file"))
	value, err = GetSecret(EnvNewsAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)

	require.NoError(t, DeleteSecret(EnvNewsAPIKey))
	value, _ = GetSecret(EnvNewsAPIKey)
	assert.Equal(t, "from-env", value)

	t.Setenv(EnvNewsAPIKey, "")
	_, err = GetSecret(EnvNewsAPIKey)
	require.Error(t, err)
}

func TestSaveAndLoadSecretsFile(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	path := SecretsPath(t.TempDir())

	SetDecryptedSecrets(map[string]string{EnvRedditClientID: "id", EnvRedditClientSecret: "secret"})
	require.NoError(t, SaveSecretsToFile(path, "pw"))
	SetDecryptedSecrets(nil)

	require.NoError(t, LoadSecretsFile(path, "pw"))
	assert.Equal(t, []string{EnvRedditClientID, EnvRedditClientSecret}, GetDecryptedSecretNames())
}
