package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealInfo binds derived keys to this use so the same master secret can be
// reused elsewhere without nonce/key collisions.
const sealInfo = "travion-kv-seal-v1"

// Sealed wraps a KV and encrypts values at rest with ChaCha20-Poly1305.
// Stored format: [nonce][ciphertext+tag]. A value that fails to authenticate
// is reported as ErrNotFound so a tampered or corrupt blob degrades to
// "no data" instead of crashing rehydration.
type Sealed struct {
	kv   KV
	aead cipher.AEAD
}

// NewSealed derives an encryption key from secret via HKDF-SHA256 and returns
// the encrypting wrapper.
func NewSealed(kv KV, secret []byte) (*Sealed, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("store: master secret is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(sealInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("store: derive seal key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("store: create cipher: %w", err)
	}

	return &Sealed{kv: kv, aead: aead}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrNotFound
	}

	plaintext, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(key))
	if err != nil {
		return nil, ErrNotFound
	}
	return plaintext, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("store: generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	return s.kv.Set(ctx, key, sealed)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

func (s *Sealed) Close() error { return s.kv.Close() }

// LoadMasterSecret resolves the at-rest encryption secret: a key file when
// path is set, then the TRAVION_MASTER_KEY environment variable, then an
// ephemeral random secret for development (sealed data will not survive a
// restart in that case).
func LoadMasterSecret(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("store: read master key file: %w", err)
		}
		return data, nil
	}

	if env := os.Getenv("TRAVION_MASTER_KEY"); env != "" {
		return []byte(env), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("store: generate ephemeral master key: %w", err)
	}
	return secret, nil
}
