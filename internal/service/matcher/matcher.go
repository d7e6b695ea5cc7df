package matcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/providers/llm"
	"github.com/sandevgo/formpilot/pkg/log"
)

const (
	defaultTokenBudget = 2000
	encodingName       = "cl100k_base"
)

// Matcher maps detected fields onto stored memories through the LLM. A
// failed or malformed generation never escapes raw: callers get an empty
// mapping set plus the error and fail the session with it.
type Matcher struct {
	ai          core.AIProvider
	tokenBudget int
	encoder     *tiktoken.Tiktoken
}

type Option func(*Matcher)

// WithTokenBudget caps the candidate-memory section of the prompt.
func WithTokenBudget(tokens int) Option {
	return func(m *Matcher) {
		if tokens > 0 {
			m.tokenBudget = tokens
		}
	}
}

func NewMatcher(ai core.AIProvider, opts ...Option) *Matcher {
	m := &Matcher{
		ai:          ai,
		tokenBudget: defaultTokenBudget,
	}
	// Offline encoder init can fail (missing embedded vocab); the length
	// estimate fallback keeps matching functional.
	if enc, err := tiktoken.GetEncoding(encodingName); err == nil {
		m.encoder = enc
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// rawMapping is the schema the model must satisfy. Anything outside it is
// dropped during validation rather than trusted.
type rawMapping struct {
	Selector   string  `json:"selector"`
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	MemoryID   string  `json:"memoryId"`
}

func (m *Matcher) Match(ctx context.Context, fields []core.DetectedField, memories []core.MemoryEntry, siteCtx *core.WebsiteContext) ([]core.FieldMapping, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	promptFields := make([]promptField, 0, len(fields))
	validSelectors := make(map[string]bool, len(fields))
	for _, f := range fields {
		promptFields = append(promptFields, compressField(f))
		validSelectors[f.Selector] = true
	}

	promptMemories := m.trimToBudget(memories)
	userPrompt := buildMatchPrompt(promptFields, promptMemories, siteCtx)

	var raw []rawMapping
	if err := llm.GenerateObject(ctx, m.ai, matchSystemPrompt, userPrompt, &raw); err != nil {
		return nil, fmt.Errorf("match generation: %w", err)
	}

	mappings := make([]core.FieldMapping, 0, len(raw))
	for _, r := range raw {
		if !validSelectors[r.Selector] {
			log.FromCtx(ctx).Debug().Str("selector", r.Selector).Msg("model returned unknown selector, dropped")
			continue
		}
		mappings = append(mappings, core.FieldMapping{
			Selector:   r.Selector,
			Value:      r.Value,
			Confidence: clamp01(r.Confidence),
			Reasoning:  r.Reasoning,
			MemoryID:   r.MemoryID,
		})
	}
	return mappings, nil
}

// trimToBudget compresses memories and drops the tail once the token budget
// is spent. Memories arrive in store order; the newest-first ordering is the
// repository's concern.
func (m *Matcher) trimToBudget(memories []core.MemoryEntry) []promptMemory {
	out := make([]promptMemory, 0, len(memories))
	budget := m.tokenBudget

	for _, entry := range memories {
		pm := compressMemory(entry)
		line, err := json.Marshal(pm)
		if err != nil {
			continue
		}
		cost := m.countTokens(string(line))
		if cost > budget {
			break
		}
		budget -= cost
		out = append(out, pm)
	}
	return out
}

func (m *Matcher) countTokens(text string) int {
	if m.encoder != nil {
		return len(m.encoder.Encode(text, nil, nil))
	}
	// Rough bytes-per-token estimate, good enough for budgeting.
	return len(text)/4 + 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
