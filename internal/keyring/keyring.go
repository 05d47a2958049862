// Package keyring stores provider API keys in the configuration table,
// encrypted with AES-256-GCM under a machine-derived key so a copied database
// does not leak credentials.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/lorekeep/archivist/internal/store"
)

const (
	// encryptedPrefix marks values as encrypted in storage.
	encryptedPrefix = "enc:v1:"

	configPrefix = "apikey."
)

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid encrypted format")
	ErrKeyNotFound      = errors.New("no key stored for provider")
)

// Keyring encrypts provider keys into the store's configuration table.
type Keyring struct {
	key   []byte
	store store.Storage
}

// New creates a keyring over the given store with a machine-derived key.
// Keys written on one machine cannot be read on another.
func New(st store.Storage) (*Keyring, error) {
	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &Keyring{key: key, store: st}, nil
}

// SetKey encrypts and stores the API key for a provider.
func (k *Keyring) SetKey(provider, apiKey string) error {
	encrypted, err := k.encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt key for %s: %w", provider, err)
	}
	return k.store.SetConfig(configPrefix+provider, encrypted)
}

// GetKey retrieves and decrypts the API key for a provider. A missing key
// returns ErrKeyNotFound.
func (k *Keyring) GetKey(provider string) (string, error) {
	stored, err := k.store.GetConfig(configPrefix + provider)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, provider)
	}
	return k.decrypt(stored)
}

func (k *Keyring) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (k *Keyring) decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}

	// Unprefixed values pass through, so a key pasted straight into the
	// config table still works.
	if !strings.HasPrefix(stored, encryptedPrefix) {
		return stored, nil
	}

	encoded := strings.TrimPrefix(stored, encryptedPrefix)
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrInvalidFormat
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// deriveKey creates a machine-specific 32-byte key for AES-256, consistent
// across restarts but unique to this machine and user.
func deriveKey() ([]byte, error) {
	var entropy strings.Builder

	hostname, _ := os.Hostname()
	entropy.WriteString(hostname)

	home, _ := os.UserHomeDir()
	entropy.WriteString(home)

	entropy.WriteString(runtime.GOOS)
	entropy.WriteString(runtime.GOARCH)

	entropy.WriteString("archivist-keyring-v1")

	if uid := os.Getuid(); uid != -1 {
		entropy.WriteString(fmt.Sprintf("uid:%d", uid))
	}
	if username := os.Getenv("USER"); username != "" {
		entropy.WriteString(username)
	}

	hash := sha256.Sum256([]byte(entropy.String()))
	return hash[:], nil
}

// MaskSecret returns a masked version of a secret for display.
// Shows only the first and last 4 characters if the secret is long enough.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
