// Package vault stores provider API keys encrypted at rest. Keys are
// sealed with AES-256-GCM under a device-fingerprint-derived key, so the
// database alone is not enough to recover them.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/fingerprint"
	"github.com/sandevgo/formpilot/pkg/log"
)

const (
	saltLen       = 32
	validationTTL = time.Hour
)

// ValidateFunc checks a plaintext key against the provider, typically by
// listing models. A nil error means the key works.
type ValidateFunc func(ctx context.Context, provider, apiKey string) error

type validation struct {
	ok        bool
	checkedAt time.Time
}

// Vault implements core.KeySource on top of a VaultRepository and the
// fingerprint broker.
type Vault struct {
	repo     core.VaultRepository
	broker   *fingerprint.Broker
	validate ValidateFunc
	now      func() time.Time

	mu          sync.Mutex
	validations map[string]validation
}

type Option func(*Vault)

func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithValidator installs the live key check used by ValidateKey.
func WithValidator(fn ValidateFunc) Option {
	return func(v *Vault) { v.validate = fn }
}

func New(repo core.VaultRepository, broker *fingerprint.Broker, opts ...Option) *Vault {
	v := &Vault{
		repo:        repo,
		broker:      broker,
		now:         time.Now,
		validations: make(map[string]validation),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// StoreKey encrypts the plaintext under a fresh per-key salt and persists
// it. Storing drops any cached validation verdict for the provider.
func (v *Vault) StoreKey(ctx context.Context, provider, plaintext string) error {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := v.sealer(ctx, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	key := core.EncryptedKey{
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Salt:      base64.StdEncoding.EncodeToString(salt),
	}
	if err := v.repo.Put(ctx, provider, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	v.dropValidation(provider)
	log.FromCtx(ctx).Info().Str("provider", provider).Msg("api key stored")
	return nil
}

// GetKey decrypts the provider's key. Missing rows, corrupted records and
// fingerprint mismatches all come back as core.ErrNoKey — to the caller
// they are the same condition: no usable key.
func (v *Vault) GetKey(ctx context.Context, provider string) (string, error) {
	stored, err := v.repo.Get(ctx, provider)
	if err != nil {
		if errors.Is(err, core.ErrNoKey) {
			return "", core.ErrNoKey
		}
		return "", fmt.Errorf("load key: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", core.ErrNoKey
	}
	sealed, err := base64.StdEncoding.DecodeString(stored.Encrypted)
	if err != nil {
		return "", core.ErrNoKey
	}

	gcm, err := v.sealer(ctx, salt)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", core.ErrNoKey
	}

	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		// Wrong fingerprint or tampered record. Either way there is no key.
		log.FromCtx(ctx).Debug().Str("provider", provider).Msg("key decryption failed")
		return "", core.ErrNoKey
	}
	return string(plaintext), nil
}

// HasKey reports whether a decryptable key exists for the provider.
func (v *Vault) HasKey(ctx context.Context, provider string) bool {
	_, err := v.GetKey(ctx, provider)
	return err == nil
}

func (v *Vault) DeleteKey(ctx context.Context, provider string) error {
	if err := v.repo.Delete(ctx, provider); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	v.dropValidation(provider)
	return nil
}

// Providers lists providers that currently have a stored key.
func (v *Vault) Providers(ctx context.Context) ([]string, error) {
	return v.repo.Providers(ctx)
}

// ValidateKey checks the plaintext against the provider. Verdicts are
// cached for an hour per provider; the cache is process-local only.
func (v *Vault) ValidateKey(ctx context.Context, provider, plaintext string) bool {
	now := v.now()

	v.mu.Lock()
	cached, ok := v.validations[provider]
	v.mu.Unlock()
	if ok && now.Sub(cached.checkedAt) < validationTTL {
		return cached.ok
	}

	verdict := plaintext != ""
	if verdict && v.validate != nil {
		if err := v.validate(ctx, provider, plaintext); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("provider", provider).Msg("api key validation failed")
			verdict = false
		}
	}

	v.mu.Lock()
	v.validations[provider] = validation{ok: verdict, checkedAt: now}
	v.mu.Unlock()
	return verdict
}

func (v *Vault) dropValidation(provider string) {
	v.mu.Lock()
	delete(v.validations, provider)
	v.mu.Unlock()
}

func (v *Vault) sealer(ctx context.Context, salt []byte) (cipher.AEAD, error) {
	derived, err := v.broker.DeriveKey(ctx, salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
