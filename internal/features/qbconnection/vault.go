package qbconnection

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"roof-crm/internal/config"
	"roof-crm/internal/database"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrVault covers every vault failure, including a NULL result.
var ErrVault = errors.New("token vault failure")

// Vault encrypts tokens at rest.
type Vault interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// NewVault seals locally when QB_TOKEN_KEY is set and otherwise defers to the
// database encrypt_token/decrypt_token functions.
func NewVault(cfg *config.Config, pg *database.PostgresDB) (Vault, error) {
	if cfg.QuickBooks.TokenKey != "" {
		return NewSealedVaultFromBase64(cfg.QuickBooks.TokenKey)
	}
	return &PostgresVault{DB: pg.DB}, nil
}

type PostgresVault struct {
	DB *sql.DB
}

func (v *PostgresVault) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return v.call(ctx, `SELECT encrypt_token($1)`, plaintext)
}

func (v *PostgresVault) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return v.call(ctx, `SELECT decrypt_token($1)`, ciphertext)
}

func (v *PostgresVault) call(ctx context.Context, query, arg string) (string, error) {
	var out sql.NullString
	if err := v.DB.QueryRowContext(ctx, query, arg).Scan(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrVault, err)
	}
	if !out.Valid {
		return "", fmt.Errorf("%w: null result", ErrVault)
	}
	return out.String, nil
}

// SealedVault is XChaCha20-Poly1305 with a random nonce prefixed to the
// ciphertext, base64 encoded.
type SealedVault struct {
	key []byte
}

func NewSealedVault(key []byte) (*SealedVault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &SealedVault{key: append([]byte(nil), key...)}, nil
}

func NewSealedVaultFromBase64(encoded string) (*SealedVault, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	return NewSealedVault(key)
}

func (v *SealedVault) Encrypt(_ context.Context, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVault, err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrVault, err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *SealedVault) Decrypt(_ context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVault, err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVault, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrVault)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVault, err)
	}
	return string(plain), nil
}
