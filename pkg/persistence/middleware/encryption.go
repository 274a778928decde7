package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// sealedPrefix marks an encrypted phone number in a stored entry.
const sealedPrefix = "sealed:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt an entry,
	// which lets keys be rotated without rewriting the journal first.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SessionJournal
	config EncryptionConfig
}

// NewEncryptionMiddleware seals the phone number of every saved entry with AES-GCM.
// The remaining fields stay readable so state can still be listed and monitored.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.SessionJournal) ports.SessionJournal {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, entry domain.JournalEntry) error {
	if entry.PhoneNumber != "" {
		ciphertext, err := encrypt([]byte(entry.PhoneNumber), m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt journal entry: %w", err)
		}
		entry.PhoneNumber = sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
	}
	return m.next.Save(ctx, entry)
}

func (m *encryptionMiddleware) Load(ctx context.Context, tenant domain.TenantID) (domain.JournalEntry, error) {
	entry, err := m.next.Load(ctx, tenant)
	if err != nil || entry.PhoneNumber == "" {
		return entry, err
	}

	encoded, ok := strings.CutPrefix(entry.PhoneNumber, sealedPrefix)
	if !ok {
		// Fail secure: a plain value means the entry was written without encryption.
		return domain.JournalEntry{}, fmt.Errorf("journal entry of %s is not sealed", tenant)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("failed to decrypt journal entry of %s: %w", tenant, err)
	}
	entry.PhoneNumber = string(plain)
	return entry, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, tenant domain.TenantID) error {
	return m.next.Delete(ctx, tenant)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]domain.TenantID, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
