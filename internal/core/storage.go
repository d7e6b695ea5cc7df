package core

import (
	"context"
	"time"
)

type MemoryRepository interface {
	Add(ctx context.Context, entry MemoryEntry) error
	Get(ctx context.Context, id string) (MemoryEntry, error)
	List(ctx context.Context) ([]MemoryEntry, error)
	Delete(ctx context.Context, id string) error
	// ContentHashes returns the hashes of all stored entries for dedup.
	ContentHashes(ctx context.Context) (map[string]struct{}, error)
	IncrementUsage(ctx context.Context, id string, usedAt time.Time) error
}

type SessionRepository interface {
	Create(ctx context.Context, session FillSession) error
	Get(ctx context.Context, id string) (FillSession, error)
	// Update replaces the stored session row. Last writer wins; there is
	// no optimistic concurrency token.
	Update(ctx context.Context, session FillSession) error
	List(ctx context.Context, limit int) ([]FillSession, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type VaultRepository interface {
	Put(ctx context.Context, provider string, key EncryptedKey) error
	Get(ctx context.Context, provider string) (EncryptedKey, error)
	Delete(ctx context.Context, provider string) error
	Providers(ctx context.Context) ([]string, error)
}
