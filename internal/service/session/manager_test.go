package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/formpilot/internal/core"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]core.FillSession
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]core.FillSession)}
}

func (r *memRepo) Create(ctx context.Context, s core.FillSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memRepo) Get(ctx context.Context, id string) (core.FillSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return core.FillSession{}, core.ErrSessionNotFound
	}
	return s, nil
}

func (r *memRepo) Update(ctx context.Context, s core.FillSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return core.ErrSessionNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memRepo) List(ctx context.Context, limit int) ([]core.FillSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.FillSession
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *memRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Status.Terminal() && s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func status(s core.SessionStatus) *core.SessionStatus { return &s }

func TestStart_CreatesDetectingSession(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())

	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDetecting, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.False(t, got.StartedAt.IsZero())
}

func TestStart_IDsAreTimeOrdered(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())

	a, err := mgr.Start(ctx)
	require.NoError(t, err)
	b, err := mgr.Start(ctx)
	require.NoError(t, err)
	assert.True(t, a.ID <= b.ID, "ulid ids must sort by creation time")
}

func TestUpdate_UnknownID(t *testing.T) {
	mgr := NewManager(newMemRepo())

	_, err := mgr.Update(context.Background(), "missing", Patch{Status: status(core.StatusMatching)})
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestUpdate_MergesPatch(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	mappings := []core.FormMapping{{URL: "https://x.example", Confidence: 0.9}}
	updated, err := mgr.Update(ctx, created.ID, Patch{
		Status:       status(core.StatusMatching),
		FormMappings: mappings,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusMatching, updated.Status)
	assert.Equal(t, mappings, updated.FormMappings)
	assert.Nil(t, updated.CompletedAt)
}

func TestUpdate_PermissiveAllowsAnyJump(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	// detecting -> filling is not in the table, permissive mode shrugs.
	updated, err := mgr.Update(ctx, created.ID, Patch{Status: status(core.StatusFilling)})
	require.NoError(t, err)
	assert.Equal(t, core.StatusFilling, updated.Status)
}

func TestUpdate_StrictRejectsJump(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo(), WithStrictTransitions())
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	_, err = mgr.Update(ctx, created.ID, Patch{Status: status(core.StatusFilling)})
	assert.ErrorIs(t, err, core.ErrTransition)

	// The documented pipeline order still passes.
	for _, next := range []core.SessionStatus{core.StatusMatching, core.StatusReviewing, core.StatusFilling, core.StatusCompleted} {
		_, err = mgr.Update(ctx, created.ID, Patch{Status: status(next)})
		require.NoError(t, err, "transition to %s", next)
	}
}

func TestUpdate_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	bogus := core.SessionStatus("exploded")
	_, err = mgr.Update(ctx, created.ID, Patch{Status: &bogus})
	assert.Error(t, err)
}

func TestComplete_IdempotentShape(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mgr := NewManager(newMemRepo(), WithClock(func() time.Time { return now }))
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	first, err := mgr.Complete(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	assert.Equal(t, core.StatusCompleted, first.Status)

	now = now.Add(time.Minute)
	second, err := mgr.Complete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, second.Status)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, second.CompletedAt.After(*first.CompletedAt), "second call moves the timestamp")
}

func TestFail_RecordsErrorAndTimestamp(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	_, err = mgr.Fail(ctx, created.ID, "x")
	require.NoError(t, err)

	got, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "x", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestFail_UnknownID(t *testing.T) {
	mgr := NewManager(newMemRepo())
	_, err := mgr.Fail(context.Background(), "missing", "boom")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestComplete_UnknownID(t *testing.T) {
	mgr := NewManager(newMemRepo())
	_, err := mgr.Complete(context.Background(), "missing")
	assert.True(t, errors.Is(err, core.ErrSessionNotFound))
}

func TestSaveFormMappings_Appends(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(newMemRepo())
	created, err := mgr.Start(ctx)
	require.NoError(t, err)

	_, err = mgr.SaveFormMappings(ctx, created.ID, []core.FormMapping{{URL: "https://a.example"}})
	require.NoError(t, err)
	got, err := mgr.SaveFormMappings(ctx, created.ID, []core.FormMapping{{URL: "https://b.example"}})
	require.NoError(t, err)
	require.Len(t, got.FormMappings, 2)
	assert.Equal(t, "https://a.example", got.FormMappings[0].URL)
}
