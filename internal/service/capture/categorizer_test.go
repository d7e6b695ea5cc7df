package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/formpilot/internal/core"
)

type fakeAI struct {
	reply string
	err   error
	calls int
}

func (f *fakeAI) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	f.calls++
	if f.err != nil {
		return core.Message{}, f.err
	}
	return core.Message{Role: core.RoleAssistant, Content: f.reply}, nil
}

func captured(n int) []core.CapturedField {
	out := make([]core.CapturedField, n)
	for i := range out {
		out[i] = typed("Question", "answer")
	}
	return out
}

func TestLLMCategorizer_ScattersPartialResponse(t *testing.T) {
	// Model answers for index 2 only; everything else keeps the default.
	ai := &fakeAI{reply: `[{"index": 2, "category": "work", "confidence": 0.95}]`}
	cat := NewLLMCategorizer(ai)

	out := cat.Categorize(context.Background(), captured(5))
	require.Len(t, out, 5)

	for _, i := range []int{0, 1, 3, 4} {
		assert.Equal(t, core.CategoryGeneral, out[i].Category, "index %d", i)
		assert.Equal(t, defaultConfidence, out[i].Confidence, "index %d", i)
	}
	assert.Equal(t, core.CategoryWork, out[2].Category)
	assert.Equal(t, 0.95, out[2].Confidence)
}

func TestLLMCategorizer_IgnoresOutOfRangeIndices(t *testing.T) {
	ai := &fakeAI{reply: `[
		{"index": -1, "category": "work", "confidence": 0.9},
		{"index": 7, "category": "work", "confidence": 0.9},
		{"index": 0, "category": "contact", "confidence": 0.9}
	]`}
	cat := NewLLMCategorizer(ai)

	out := cat.Categorize(context.Background(), captured(2))
	require.Len(t, out, 2)
	assert.Equal(t, core.CategoryContact, out[0].Category)
	assert.Equal(t, core.CategoryGeneral, out[1].Category)
}

func TestLLMCategorizer_ProviderFailureDegradesToDefaults(t *testing.T) {
	ai := &fakeAI{err: errors.New("connection refused")}
	cat := NewLLMCategorizer(ai)

	out := cat.Categorize(context.Background(), captured(3))
	require.Len(t, out, 3)
	for i, c := range out {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, core.CategoryGeneral, c.Category)
		assert.Equal(t, defaultConfidence, c.Confidence)
	}
}

func TestLLMCategorizer_UnknownCategoryFallsBackToGeneral(t *testing.T) {
	ai := &fakeAI{reply: `[{"index": 0, "category": "astrology", "confidence": 2.0}]`}
	cat := NewLLMCategorizer(ai)

	out := cat.Categorize(context.Background(), captured(1))
	assert.Equal(t, core.CategoryGeneral, out[0].Category)
	assert.Equal(t, 1.0, out[0].Confidence, "confidence clamped to [0,1]")
}

func TestLLMCategorizer_EmptyInputSkipsModel(t *testing.T) {
	ai := &fakeAI{reply: "[]"}
	cat := NewLLMCategorizer(ai)

	out := cat.Categorize(context.Background(), nil)
	assert.Empty(t, out)
	assert.Equal(t, 0, ai.calls)
}

func TestKeywordCategorizer(t *testing.T) {
	tests := []struct {
		question string
		want     core.Category
	}{
		{"Email address", core.CategoryContact},
		{"Phone number", core.CategoryContact},
		{"Street address", core.CategoryLocation},
		{"ZIP code", core.CategoryLocation},
		{"Current employer", core.CategoryWork},
		{"University attended", core.CategoryEducation},
		{"Date of birth", core.CategoryPersonal},
		{"Favourite colour", core.CategoryGeneral},
	}

	var cat KeywordCategorizer
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			out := cat.Categorize(context.Background(), []core.CapturedField{typed(tt.question, "x")})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Category)
			if tt.want == core.CategoryGeneral {
				assert.Equal(t, defaultConfidence, out[0].Confidence)
			} else {
				assert.Equal(t, keywordConfidence, out[0].Confidence)
			}
		})
	}
}
