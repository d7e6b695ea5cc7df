package capture

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/pkg/log"
)

// trackableTypes lists the field types whose values are worth remembering.
// Passwords, checkboxes and friends never enter the memory store.
var trackableTypes = map[string]bool{
	"text":     true,
	"email":    true,
	"tel":      true,
	"textarea": true,
	"url":      true,
}

// Service harvests user-typed answers back into the memory store. The page
// script reports every tracked interaction; the service decides what is
// actually worth keeping.
type Service struct {
	memories    core.MemoryRepository
	categorizer Categorizer
	now         func() time.Time
	entropy     *ulid.MonotonicEntropy
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(memories core.MemoryRepository, categorizer Categorizer, opts ...Option) *Service {
	s := &Service{
		memories:    memories,
		categorizer: categorizer,
		now:         time.Now,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Result struct {
	Success    bool `json:"success"`
	SavedCount int  `json:"savedCount"`
}

// SaveCapturedMemories filters the tracked fields down to user-typed answers
// with a usable question, categorizes the survivors in one bulk call, and
// appends deduplicated entries to the memory collection.
func (s *Service) SaveCapturedMemories(ctx context.Context, fields []core.CapturedField) (Result, error) {
	kept := filterCapturable(fields)
	if len(kept) == 0 {
		return Result{Success: true}, nil
	}

	categories := s.categorizer.Categorize(ctx, kept)

	existing, err := s.memories.ContentHashes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load content hashes: %w", err)
	}

	logger := log.FromCtx(ctx)
	saved := 0
	for i, f := range kept {
		answer := strings.TrimSpace(f.Value)
		cat := categories[i]

		hash := ContentHash(f.Question, answer, cat.Category)
		if _, dup := existing[hash]; dup {
			logger.Debug().Str("question", f.Question).Msg("captured answer already stored, skipped")
			continue
		}

		now := s.now().UTC()
		entry := core.MemoryEntry{
			ID:          ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
			Question:    f.Question,
			Answer:      answer,
			Category:    cat.Category,
			Confidence:  cat.Confidence,
			ContentHash: hash,
			Metadata: core.EntryMetadata{
				CreatedAt: now,
				UpdatedAt: now,
				Source:    core.SourceAutofill,
			},
		}
		if err := entry.Validate(); err != nil {
			logger.Warn().Err(err).Str("question", f.Question).Msg("captured entry failed validation, skipped")
			continue
		}

		if err := s.memories.Add(ctx, entry); err != nil {
			return Result{SavedCount: saved}, fmt.Errorf("save captured entry: %w", err)
		}
		existing[hash] = struct{}{}
		saved++
	}

	logger.Info().Int("tracked", len(fields)).Int("saved", saved).Msg("capture pass finished")
	return Result{Success: true, SavedCount: saved}, nil
}

// filterCapturable keeps fields the user typed into: not AI-filled, a
// trackable type, a non-empty trimmed value and a usable question. The
// question arrives pre-extracted with the detector's label priority.
func filterCapturable(fields []core.CapturedField) []core.CapturedField {
	var kept []core.CapturedField
	for _, f := range fields {
		if f.AIFilled {
			continue
		}
		if !trackableTypes[f.Type] {
			continue
		}
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		if strings.TrimSpace(f.Question) == "" {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
