package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/providers/llm"
	"github.com/sandevgo/formpilot/pkg/log"
)

const (
	defaultConfidence = 0.3
	keywordConfidence = 0.8
)

// Categorizer assigns a category to each captured field. Implementations
// must return exactly one result per input, aligned by slice position.
type Categorizer interface {
	Categorize(ctx context.Context, fields []core.CapturedField) []core.CategorizedField
}

// categoryDefaults pre-sizes the result set so a partial model response
// never leaves a field uncategorized.
func categoryDefaults(n int) []core.CategorizedField {
	out := make([]core.CategorizedField, n)
	for i := range out {
		out[i] = core.CategorizedField{
			Index:      i,
			Category:   core.CategoryGeneral,
			Confidence: defaultConfidence,
		}
	}
	return out
}

const categorizeSystemPrompt = "You categorize form answers for an autofill memory store. " +
	"Output only valid JSON."

// rawCategory mirrors the schema the model must return. The index field is
// explicit because positional trust in model output is misplaced.
type rawCategory struct {
	Index      int     `json:"index"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// LLMCategorizer asks the model for categories in one bulk call and scatters
// the response into the defaults. Any model failure degrades to all-defaults
// instead of surfacing an error.
type LLMCategorizer struct {
	ai core.AIProvider
}

func NewLLMCategorizer(ai core.AIProvider) *LLMCategorizer {
	return &LLMCategorizer{ai: ai}
}

func (c *LLMCategorizer) Categorize(ctx context.Context, fields []core.CapturedField) []core.CategorizedField {
	out := categoryDefaults(len(fields))
	if len(fields) == 0 {
		return out
	}

	var raw []rawCategory
	if err := llm.GenerateObject(ctx, c.ai, categorizeSystemPrompt, buildCategorizePrompt(fields), &raw); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("bulk categorization failed, using defaults")
		return out
	}

	for _, r := range raw {
		if r.Index < 0 || r.Index >= len(fields) {
			continue
		}
		out[r.Index] = core.CategorizedField{
			Index:      r.Index,
			Category:   core.ParseCategory(r.Category),
			Confidence: clamp01(r.Confidence),
		}
	}
	return out
}

func buildCategorizePrompt(fields []core.CapturedField) string {
	type item struct {
		Index    int    `json:"index"`
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	items := make([]item, 0, len(fields))
	for i, f := range fields {
		items = append(items, item{Index: i, Question: f.Question, Answer: f.Value})
	}
	itemsJSON, _ := json.Marshal(items)

	return fmt.Sprintf(`Categorize each question/answer pair.

Pairs:
%s

Rules:
1. Output a JSON array of {"index", "category", "confidence"}.
2. "index" must echo the input index of the pair.
3. "category" is one of: contact, general, location, work, personal, education.
4. "confidence" is a number between 0 and 1.`, itemsJSON)
}

// keywordRules drive the offline categorizer. First match wins, so the more
// specific words come before the generic ones.
var keywordRules = []struct {
	category core.Category
	words    []string
}{
	{core.CategoryContact, []string{"email", "e-mail", "phone", "tel", "mobile", "name", "contact"}},
	{core.CategoryLocation, []string{"address", "street", "city", "state", "zip", "postal", "country", "location"}},
	{core.CategoryWork, []string{"company", "employer", "job", "occupation", "salary", "position", "work", "linkedin"}},
	{core.CategoryEducation, []string{"school", "university", "college", "degree", "education", "gpa", "graduation"}},
	{core.CategoryPersonal, []string{"birth", "age", "gender", "nationality", "marital", "ssn", "passport"}},
}

// KeywordCategorizer is the deterministic fallback used when no provider or
// API key is configured.
type KeywordCategorizer struct{}

func (KeywordCategorizer) Categorize(_ context.Context, fields []core.CapturedField) []core.CategorizedField {
	out := categoryDefaults(len(fields))
	for i, f := range fields {
		question := strings.ToLower(f.Question)
		for _, rule := range keywordRules {
			if containsAny(question, rule.words) {
				out[i] = core.CategorizedField{Index: i, Category: rule.category, Confidence: keywordConfidence}
				break
			}
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
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
