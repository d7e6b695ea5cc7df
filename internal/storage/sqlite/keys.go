package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
)

type VaultRepo struct {
	db *sql.DB
}

func NewVaultRepo(db *sql.DB) *VaultRepo {
	return &VaultRepo{db: db}
}

func (r *VaultRepo) Put(ctx context.Context, provider string, key core.EncryptedKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vault_keys (provider, encrypted, salt, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET encrypted = excluded.encrypted, salt = excluded.salt, updated_at = excluded.updated_at`,
		provider, key.Encrypted, key.Salt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert vault key: %w", err)
	}
	return nil
}

func (r *VaultRepo) Get(ctx context.Context, provider string) (core.EncryptedKey, error) {
	var key core.EncryptedKey
	err := r.db.QueryRowContext(ctx,
		`SELECT encrypted, salt FROM vault_keys WHERE provider = ?`, provider).
		Scan(&key.Encrypted, &key.Salt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EncryptedKey{}, core.ErrNoKey
	}
	if err != nil {
		return core.EncryptedKey{}, fmt.Errorf("failed to query vault key: %w", err)
	}
	return key, nil
}

func (r *VaultRepo) Delete(ctx context.Context, provider string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vault_keys WHERE provider = ?`, provider)
	if err != nil {
		return fmt.Errorf("failed to delete vault key: %w", err)
	}
	return nil
}

func (r *VaultRepo) Providers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT provider FROM vault_keys ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault providers: %w", err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
