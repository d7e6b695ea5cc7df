package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, session core.FillSession) error {
	mappings, err := marshalMappings(session.FormMappings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO fill_sessions (id, status, form_mappings, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.Status), mappings, session.Error,
		session.StartedAt, session.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (core.FillSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, status, form_mappings, error, started_at, completed_at
		 FROM fill_sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FillSession{}, core.ErrSessionNotFound
	}
	return session, err
}

// Update replaces the whole row. Last writer wins.
func (r *SessionRepo) Update(ctx context.Context, session core.FillSession) error {
	mappings, err := marshalMappings(session.FormMappings)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE fill_sessions SET status = ?, form_mappings = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		string(session.Status), mappings, session.Error, session.CompletedAt, session.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

// List returns the most recent sessions, newest first. A non-positive
// limit means no limit.
func (r *SessionRepo) List(ctx context.Context, limit int) ([]core.FillSession, error) {
	if limit <= 0 {
		limit = -1 // sqlite treats negative LIMIT as unlimited
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, status, form_mappings, error, started_at, completed_at
		 FROM fill_sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.FillSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM fill_sessions
		 WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(core.StatusCompleted), string(core.StatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func marshalMappings(mappings []core.FormMapping) (string, error) {
	if len(mappings) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(mappings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal form mappings: %w", err)
	}
	return string(data), nil
}

func scanSession(row scanner) (core.FillSession, error) {
	var session core.FillSession
	var status, mappingsStr string
	var completedAt sql.NullTime

	err := row.Scan(&session.ID, &status, &mappingsStr, &session.Error,
		&session.StartedAt, &completedAt)
	if err != nil {
		return core.FillSession{}, err
	}

	session.Status = core.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	if mappingsStr != "" && mappingsStr != "[]" {
		if err := json.Unmarshal([]byte(mappingsStr), &session.FormMappings); err != nil {
			return core.FillSession{}, fmt.Errorf("failed to unmarshal form mappings: %w", err)
		}
	}
	return session, nil
}
