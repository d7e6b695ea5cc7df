package matcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/formpilot/internal/core"
)

const matchSystemPrompt = "You are a form-autofill matching system. " +
	"You map form fields to the user's stored answers. Output only valid JSON."

// promptField is the compressed field shape sent to the model. Everything
// positional (rect, opid) stays out of the prompt.
type promptField struct {
	Selector string   `json:"selector"`
	Type     string   `json:"type"`
	Purpose  string   `json:"purpose,omitempty"`
	Label    string   `json:"label,omitempty"`
	Context  string   `json:"context,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type promptMemory struct {
	ID       string        `json:"id"`
	Question string        `json:"question,omitempty"`
	Answer   string        `json:"answer"`
	Category core.Category `json:"category"`
}

func compressField(f core.DetectedField) promptField {
	context := f.Metadata.Placeholder
	if f.Metadata.Required {
		context = strings.TrimSpace(context + " (required)")
	}
	return promptField{
		Selector: f.Selector,
		Type:     f.Metadata.Type,
		Purpose:  f.Metadata.Purpose,
		Label:    f.Metadata.Label,
		Context:  context,
		Options:  f.Metadata.Options,
	}
}

func compressMemory(e core.MemoryEntry) promptMemory {
	return promptMemory{
		ID:       e.ID,
		Question: e.Question,
		Answer:   e.Answer,
		Category: e.Category,
	}
}

func buildMatchPrompt(fields []promptField, memories []promptMemory, siteCtx *core.WebsiteContext) string {
	fieldsJSON, _ := json.Marshal(fields)
	memoriesJSON, _ := json.Marshal(memories)

	var site string
	if siteCtx != nil {
		site = fmt.Sprintf("Site: %s (%s). Title: %s. %s",
			siteCtx.Domain, siteCtx.SiteType, siteCtx.Title, siteCtx.Description)
	}

	return fmt.Sprintf(`Match each form field to the best stored answer.

%s

Fields:
%s

Stored answers:
%s

Rules:
1. Output a JSON array, one object per field, in field order: {"selector", "value", "confidence", "reasoning", "memoryId"}.
2. "value" is the text to fill, adapted to the field (for select/radio pick one of the listed options verbatim).
3. If no stored answer fits, set "value" to null and "confidence" to 0.
4. "confidence" is a number between 0 and 1. Be conservative.
5. Never invent answers that are not grounded in a stored answer.`,
		site, fieldsJSON, memoriesJSON)
}
