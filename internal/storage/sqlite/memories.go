package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/pkg/log"
)

type MemoryRepo struct {
	db *sql.DB
}

func NewMemoryRepo(db *sql.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Add(ctx context.Context, entry core.MemoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	// Empty tag sets are stored as empty string to save space
	tagsStr := string(tagsJSON)
	if tagsStr == "null" {
		tagsStr = ""
	}

	query := `INSERT INTO memories
		(id, sync_id, question, answer, category, tags, confidence, content_hash, source, usage_count, last_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.SyncID, entry.Question, entry.Answer, string(entry.Category),
		tagsStr, entry.Confidence, entry.ContentHash, entry.Metadata.Source,
		entry.Metadata.UsageCount, entry.Metadata.LastUsed,
		entry.Metadata.CreatedAt, entry.Metadata.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

const memoryColumns = `id, sync_id, question, answer, category, tags, confidence, content_hash, source, usage_count, last_used, created_at, updated_at`

func (r *MemoryRepo) Get(ctx context.Context, id string) (core.MemoryEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	entry, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemoryEntry{}, core.ErrMemoryNotFound
	}
	if err != nil {
		return core.MemoryEntry{}, err
	}
	if err := entry.Validate(); err != nil {
		return core.MemoryEntry{}, err
	}
	return entry, nil
}

// List returns all entries newest first. Rows that no longer pass
// validation are skipped with a warning instead of poisoning the result.
func (r *MemoryRepo) List(ctx context.Context) ([]core.MemoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var entries []core.MemoryEntry
	for rows.Next() {
		entry, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if err := entry.Validate(); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("id", entry.ID).Msg("skipping corrupt memory row")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrMemoryNotFound
	}
	return nil
}

func (r *MemoryRepo) ContentHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content_hash FROM memories WHERE content_hash != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes[hash] = struct{}{}
	}
	return hashes, rows.Err()
}

func (r *MemoryRepo) IncrementUsage(ctx context.Context, id string, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET usage_count = usage_count + 1, last_used = ?, updated_at = ? WHERE id = ?`,
		usedAt, usedAt, id)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrMemoryNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (core.MemoryEntry, error) {
	var entry core.MemoryEntry
	var category, tagsStr string
	var lastUsed sql.NullTime

	err := row.Scan(
		&entry.ID, &entry.SyncID, &entry.Question, &entry.Answer, &category,
		&tagsStr, &entry.Confidence, &entry.ContentHash, &entry.Metadata.Source,
		&entry.Metadata.UsageCount, &lastUsed,
		&entry.Metadata.CreatedAt, &entry.Metadata.UpdatedAt,
	)
	if err != nil {
		return core.MemoryEntry{}, err
	}

	entry.Category = core.Category(category)
	if lastUsed.Valid {
		t := lastUsed.Time
		entry.Metadata.LastUsed = &t
	}
	if tagsStr != "" {
		if err := json.Unmarshal([]byte(tagsStr), &entry.Tags); err != nil {
			return core.MemoryEntry{}, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return entry, nil
}
