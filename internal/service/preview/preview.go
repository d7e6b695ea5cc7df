package preview

import (
	"sync"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
)

// Payload is what the extension UI renders for one tab: the matched
// mappings awaiting user approval, keyed to the session that produced them.
type Payload struct {
	SessionID    string             `json:"sessionId"`
	FormMappings []core.FormMapping `json:"formMappings"`
	Fields       []core.DetectedField `json:"fields,omitempty"`
}

// Progress reports fill execution state back to the UI.
type Progress struct {
	Filled  int    `json:"filled"`
	Total   int    `json:"total"`
	Current string `json:"current,omitempty"`
	Done    bool   `json:"done"`
}

// TabState is the full per-tab UI state. It is ephemeral: never persisted,
// dropped when the preview closes or the tab navigates away.
type TabState struct {
	Payload   *Payload  `json:"payload,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Coordinator holds preview state per tab behind one mutex. Tabs are
// independent; the extension addresses them by its own tab id.
type Coordinator struct {
	mu   sync.Mutex
	tabs map[string]*TabState
	now  func() time.Time
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		tabs: make(map[string]*TabState),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShowPreview replaces the tab's pending payload and clears stale progress.
func (c *Coordinator) ShowPreview(tabID string, payload Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tabs[tabID] = &TabState{
		Payload:   &payload,
		UpdatedAt: c.now().UTC(),
	}
}

// UpdateProgress records fill progress for the tab. A progress update on a
// tab with no preview still lands, so a racing close does not lose the
// final "done" signal.
func (c *Coordinator) UpdateProgress(tabID string, progress Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.tabs[tabID]
	if !ok {
		state = &TabState{}
		c.tabs[tabID] = state
	}
	state.Progress = &progress
	state.UpdatedAt = c.now().UTC()
}

// ClosePreview drops all state for the tab.
func (c *Coordinator) ClosePreview(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tabs, tabID)
}

// State returns a copy of the tab's state, or false when the tab has none.
func (c *Coordinator) State(tabID string) (TabState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.tabs[tabID]
	if !ok {
		return TabState{}, false
	}
	return *state, true
}

// ApplyEdits merges user edits from the preview UI back into the pending
// payload before fill. Edits address mappings by selector; unknown
// selectors are ignored.
func (c *Coordinator) ApplyEdits(tabID string, edits map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.tabs[tabID]
	if !ok || state.Payload == nil {
		return false
	}

	for fi := range state.Payload.FormMappings {
		form := &state.Payload.FormMappings[fi]
		for mi := range form.Mappings {
			mapping := &form.Mappings[mi]
			if edited, ok := edits[mapping.Selector]; ok {
				v := edited
				mapping.Value = &v
				mapping.Confidence = 1 // user said so
			}
		}
	}
	state.UpdatedAt = c.now().UTC()
	return true
}
