package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/pkg/retry"
)

// GenerateObject runs one structured-output round trip: system + user prompt
// in, the first JSON value of the reply unmarshalled into out. Models wrap
// JSON in prose or code fences often enough that the extraction is lenient;
// the schema check is not — an unmarshal failure is returned to the caller,
// which owns the fallback policy.
func GenerateObject(ctx context.Context, ai core.AIProvider, systemPrompt, userPrompt string, out any) error {
	retrier := retry.NewRetrier(&retry.Config{
		MaxRetries:    2,
		BackoffFactor: 2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Jitter:        100 * time.Millisecond,
		If:            Retryable,
	})

	var resp core.Message
	err := retrier.Do(ctx, func() error {
		var chatErr error
		resp, chatErr = ai.Chat(ctx, []core.Message{
			{Role: core.RoleSystem, Content: systemPrompt},
			{Role: core.RoleUser, Content: userPrompt},
		})
		return chatErr
	})
	if err != nil {
		return fmt.Errorf("llm chat: %w", err)
	}

	jsonStr := ExtractJSON(resp.Content)
	if jsonStr == "" {
		return fmt.Errorf("no JSON value found in response")
	}

	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// ExtractJSON returns the first top-level JSON array or object in content.
func ExtractJSON(content string) string {
	arrStart := strings.Index(content, "[")
	objStart := strings.Index(content, "{")

	start, closer := arrStart, "]"
	if start == -1 || (objStart != -1 && objStart < arrStart) {
		start, closer = objStart, "}"
	}
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], closer)
	if end == -1 {
		return ""
	}
	return content[start : start+end+1]
}
