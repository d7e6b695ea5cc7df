package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/pkg/log"
)

// transitions is the explicit status graph. The pipeline normally walks
// detecting → matching → reviewing → filling → completed; failed is
// reachable from every non-terminal state. The default mode is permissive —
// any component may push any status, which tolerates out-of-order messages
// from the page — and the table is only enforced in strict mode.
var transitions = map[core.SessionStatus][]core.SessionStatus{
	core.StatusDetecting: {core.StatusMatching, core.StatusFailed},
	core.StatusMatching:  {core.StatusReviewing, core.StatusFailed},
	core.StatusReviewing: {core.StatusFilling, core.StatusFailed},
	core.StatusFilling:   {core.StatusCompleted, core.StatusFailed},
	core.StatusCompleted: {},
	core.StatusFailed:    {},
}

type Option func(*Manager)

// WithStrictTransitions makes Update reject status jumps outside the table.
func WithStrictTransitions() Option {
	return func(m *Manager) { m.strict = true }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the fill-session lifecycle. Persistence is last-writer-wins:
// concurrent updates from two tabs race and the slower write sticks.
type Manager struct {
	repo    core.SessionRepository
	strict  bool
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

func NewManager(repo core.SessionRepository, opts ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a session in detecting and appends it to the history.
func (m *Manager) Start(ctx context.Context) (core.FillSession, error) {
	now := m.now().UTC()
	session := core.FillSession{
		ID:        ulid.MustNew(ulid.Timestamp(now), m.entropy).String(),
		Status:    core.StatusDetecting,
		StartedAt: now,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return core.FillSession{}, fmt.Errorf("create session: %w", err)
	}

	log.FromCtx(ctx).Debug().Str("session", session.ID).Msg("fill session started")
	return session, nil
}

func (m *Manager) Get(ctx context.Context, id string) (core.FillSession, error) {
	return m.repo.Get(ctx, id)
}

// List returns recent sessions, newest first, up to limit.
func (m *Manager) List(ctx context.Context, limit int) ([]core.FillSession, error) {
	return m.repo.List(ctx, limit)
}

// Patch is a partial session update. Nil fields are left untouched.
type Patch struct {
	Status       *core.SessionStatus
	FormMappings []core.FormMapping
	Error        *string
}

// Update merges a patch into the stored session. Unknown ids yield
// core.ErrSessionNotFound.
func (m *Manager) Update(ctx context.Context, id string, patch Patch) (core.FillSession, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return core.FillSession{}, err
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return core.FillSession{}, fmt.Errorf("unknown status %q", *patch.Status)
		}
		if err := m.checkTransition(ctx, session.Status, *patch.Status); err != nil {
			return core.FillSession{}, err
		}
		session.Status = *patch.Status
		if session.Status.Terminal() && session.CompletedAt == nil {
			now := m.now().UTC()
			session.CompletedAt = &now
		}
	}
	if patch.FormMappings != nil {
		session.FormMappings = patch.FormMappings
	}
	if patch.Error != nil {
		session.Error = *patch.Error
	}

	if err := m.repo.Update(ctx, session); err != nil {
		return core.FillSession{}, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// SaveFormMappings appends one matched form to the session.
func (m *Manager) SaveFormMappings(ctx context.Context, id string, mappings []core.FormMapping) (core.FillSession, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return core.FillSession{}, err
	}

	session.FormMappings = append(session.FormMappings, mappings...)
	if err := m.repo.Update(ctx, session); err != nil {
		return core.FillSession{}, fmt.Errorf("save mappings: %w", err)
	}
	return session, nil
}

// Complete forces completed and stamps completedAt. Calling it twice leaves
// the status completed; only the timestamp moves.
func (m *Manager) Complete(ctx context.Context, id string) (core.FillSession, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return core.FillSession{}, err
	}

	session.Status = core.StatusCompleted
	now := m.now().UTC()
	session.CompletedAt = &now
	session.Error = ""

	if err := m.repo.Update(ctx, session); err != nil {
		return core.FillSession{}, fmt.Errorf("complete session: %w", err)
	}
	return session, nil
}

// Fail forces failed, records the human-readable reason and stamps
// completedAt.
func (m *Manager) Fail(ctx context.Context, id, message string) (core.FillSession, error) {
	session, err := m.repo.Get(ctx, id)
	if err != nil {
		return core.FillSession{}, err
	}

	session.Status = core.StatusFailed
	session.Error = message
	now := m.now().UTC()
	session.CompletedAt = &now

	if err := m.repo.Update(ctx, session); err != nil {
		return core.FillSession{}, fmt.Errorf("fail session: %w", err)
	}

	log.FromCtx(ctx).Warn().Str("session", id).Str("error", message).Msg("fill session failed")
	return session, nil
}

func (m *Manager) checkTransition(ctx context.Context, from, to core.SessionStatus) error {
	if from == to {
		return nil
	}
	for _, allowed := range transitions[from] {
		if to == allowed {
			return nil
		}
	}

	if m.strict {
		return fmt.Errorf("%w: %s -> %s", core.ErrTransition, from, to)
	}
	// Permissive mode keeps the original behaviour but leaves a trace.
	log.FromCtx(ctx).Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("out-of-order status transition allowed")
	return nil
}
