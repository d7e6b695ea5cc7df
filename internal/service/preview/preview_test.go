package preview

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/formpilot/internal/core"
)

func payloadWith(selector, value string) Payload {
	v := value
	return Payload{
		SessionID: "s1",
		FormMappings: []core.FormMapping{{
			URL: "https://x.example",
			Mappings: []core.FieldMapping{
				{Selector: selector, Value: &v, Confidence: 0.7},
			},
		}},
	}
}

func TestShowAndState(t *testing.T) {
	c := NewCoordinator()
	c.ShowPreview("tab-1", payloadWith("#email", "jan@example.com"))

	state, ok := c.State("tab-1")
	require.True(t, ok)
	require.NotNil(t, state.Payload)
	assert.Equal(t, "s1", state.Payload.SessionID)
	assert.Nil(t, state.Progress)

	_, ok = c.State("tab-2")
	assert.False(t, ok)
}

func TestShowPreview_ReplacesStaleProgress(t *testing.T) {
	c := NewCoordinator()
	c.UpdateProgress("tab-1", Progress{Filled: 3, Total: 3, Done: true})
	c.ShowPreview("tab-1", payloadWith("#x", "v"))

	state, ok := c.State("tab-1")
	require.True(t, ok)
	assert.Nil(t, state.Progress, "new preview must not show the previous run's progress")
}

func TestUpdateProgress_WithoutPreview(t *testing.T) {
	c := NewCoordinator()
	c.UpdateProgress("tab-1", Progress{Filled: 1, Total: 4, Current: "#email"})

	state, ok := c.State("tab-1")
	require.True(t, ok)
	require.NotNil(t, state.Progress)
	assert.Equal(t, 1, state.Progress.Filled)
	assert.Nil(t, state.Payload)
}

func TestClosePreview_DropsState(t *testing.T) {
	c := NewCoordinator()
	c.ShowPreview("tab-1", payloadWith("#x", "v"))
	c.ClosePreview("tab-1")

	_, ok := c.State("tab-1")
	assert.False(t, ok)

	// Closing an unknown tab is a no-op.
	c.ClosePreview("tab-9")
}

func TestTabsAreIndependent(t *testing.T) {
	c := NewCoordinator()
	c.ShowPreview("tab-1", payloadWith("#a", "1"))
	c.ShowPreview("tab-2", payloadWith("#b", "2"))
	c.ClosePreview("tab-1")

	_, ok := c.State("tab-1")
	assert.False(t, ok)
	state, ok := c.State("tab-2")
	require.True(t, ok)
	assert.Equal(t, "#b", state.Payload.FormMappings[0].Mappings[0].Selector)
}

func TestApplyEdits(t *testing.T) {
	c := NewCoordinator()
	c.ShowPreview("tab-1", payloadWith("#email", "wrong@example.com"))

	ok := c.ApplyEdits("tab-1", map[string]string{
		"#email":   "right@example.com",
		"#unknown": "ignored",
	})
	require.True(t, ok)

	state, _ := c.State("tab-1")
	mapping := state.Payload.FormMappings[0].Mappings[0]
	require.NotNil(t, mapping.Value)
	assert.Equal(t, "right@example.com", *mapping.Value)
	assert.Equal(t, 1.0, mapping.Confidence)
}

func TestApplyEdits_NoPreview(t *testing.T) {
	c := NewCoordinator()
	assert.False(t, c.ApplyEdits("tab-1", map[string]string{"#x": "v"}))
}

func TestState_ReturnsCopy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCoordinator(WithClock(func() time.Time { return now }))
	c.ShowPreview("tab-1", payloadWith("#x", "v"))

	state, _ := c.State("tab-1")
	state.Progress = &Progress{Done: true}

	again, _ := c.State("tab-1")
	assert.Nil(t, again.Progress, "mutating the returned copy must not leak back")
	assert.Equal(t, now, again.UpdatedAt)
}

func TestConcurrentAccess(t *testing.T) {
	c := NewCoordinator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ShowPreview("tab-1", payloadWith("#x", "v"))
			c.UpdateProgress("tab-1", Progress{Filled: 1, Total: 2})
			c.State("tab-1")
			c.ClosePreview("tab-1")
		}()
	}
	wg.Wait()
}
