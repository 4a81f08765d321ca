package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Encrypted secrets live in a single file laid out as salt | nonce | sealed JSON.
// The key is derived from the operator password with scrypt and the payload is
// sealed with AES-256-GCM.
const (
	secretsFileName = "secrets.json.enc"

	saltLen  = 16
	nonceLen = 12
	tagLen   = 16
	keyLen   = 32

	scryptCost        = 1 << 15
	scryptBlockSize   = 8
	scryptParallelism = 1
)

// ErrWrongPassword is returned when the secrets file cannot be opened with the given password.
var ErrWrongPassword = errors.New("decryption failed (wrong password or corrupted file)")

// vault holds the decrypted secrets for the life of the process.
//
//nolint:gochecknoglobals // process-wide secret store read by providers at call time
var vault = struct {
	sync.RWMutex
	values map[string]string
}{}

// SecretsPath returns the encrypted secrets file location under dir.
func SecretsPath(dir string) string {
	return filepath.Join(dir, ".boxonomics", secretsFileName)
}

// SecretsFileExists reports whether path exists.
func SecretsFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SetDecryptedSecrets replaces the in-memory secret set.
func SetDecryptedSecrets(secrets map[string]string) {
	vault.Lock()
	vault.values = secrets
	vault.Unlock()
}

// GetSecret resolves name from the decrypted file first, then the environment.
func GetSecret(name string) (string, error) {
	vault.RLock()
	value := vault.values[name]
	vault.RUnlock()
	if value != "" {
		return value, nil
	}
	if value = os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames lists loaded secret names in sorted order. Values are never returned.
func GetDecryptedSecretNames() []string {
	vault.RLock()
	defer vault.RUnlock()
	return slices.Sorted(maps.Keys(vault.values))
}

// SetSecret stores a value in memory only. Call SaveSecretsToFile to persist it.
func SetSecret(name, value string) error {
	vault.Lock()
	defer vault.Unlock()
	if vault.values == nil {
		vault.values = make(map[string]string)
	}
	vault.values[name] = value
	return nil
}

// DeleteSecret removes name from memory.
func DeleteSecret(name string) error {
	vault.Lock()
	delete(vault.values, name)
	vault.Unlock()
	return nil
}

// SaveSecretsToFile encrypts a snapshot of the in-memory secrets to path.
func SaveSecretsToFile(path, password string) error {
	vault.RLock()
	snapshot := maps.Clone(vault.values)
	vault.RUnlock()
	if snapshot == nil {
		snapshot = map[string]string{}
	}
	return EncryptSecretsFile(path, password, snapshot)
}

// LoadSecretsFile decrypts path and makes its secrets visible to GetSecret.
func LoadSecretsFile(path, password string) error {
	secrets, err := DecryptSecretsFile(path, password)
	if err != nil {
		return err
	}
	SetDecryptedSecrets(secrets)
	logger.Info("🔐 Loaded %d secrets from %s", len(secrets), path)
	return nil
}

// EncryptSecretsFile writes secrets to path with mode 0600, creating the directory if needed.
func EncryptSecretsFile(path, password string, secrets map[string]string) error {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer wipe(plaintext)

	blob, err := seal([]byte(password), plaintext)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and opens the secrets file at path.
// A file readable by others is tightened to 0600 before it is read.
func DecryptSecretsFile(path, password string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		logger.Warn("⚠️  Secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, 0o600); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	plaintext, err := open([]byte(password), blob)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

// seal encrypts plaintext under a fresh salt and nonce and returns the file bytes.
func seal(password, plaintext []byte) ([]byte, error) {
	defer wipe(password)

	header := make([]byte, saltLen+nonceLen)
	if _, err := rand.Read(header); err != nil {
		return nil, fmt.Errorf("failed to generate salt and nonce: %w", err)
	}
	salt, nonce := header[:saltLen], header[saltLen:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	return aead.Seal(header, nonce, plaintext, nil), nil
}

// open reverses seal.
func open(password, blob []byte) ([]byte, error) {
	defer wipe(password)

	if len(blob) < saltLen+nonceLen+tagLen {
		return nil, errors.New("secrets file is corrupted or invalid format (too small)")
	}
	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+nonceLen]
	body := blob[saltLen+nonceLen:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func newAEAD(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptCost, scryptBlockSize, scryptParallelism, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

func wipe(b []byte) {
	clear(b)
}
