package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/formpilot/internal/core"
)

// Unavailable is the provider used when no usable configuration exists, for
// example when no API key is stored. Every call fails with the original
// cause, which the callers' fallback policy turns into safe defaults.
type Unavailable struct {
	cause error
}

func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

func (u *Unavailable) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return core.Message{}, fmt.Errorf("llm provider unavailable: %w", u.cause)
}
