package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	AppName      = "FormPilot"
	AppUserAgent = "FormPilot-Host/0.1"
	AppVersion   = "0.1.0"
)

// Category classifies what kind of answer a memory entry holds.
type Category string

const (
	CategoryContact   Category = "contact"
	CategoryGeneral   Category = "general"
	CategoryLocation  Category = "location"
	CategoryWork      Category = "work"
	CategoryPersonal  Category = "personal"
	CategoryEducation Category = "education"
)

var Categories = []Category{
	CategoryContact,
	CategoryGeneral,
	CategoryLocation,
	CategoryWork,
	CategoryPersonal,
	CategoryEducation,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps free text onto a known category, defaulting to general.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryGeneral
}

const (
	SourceManual   = "manual"
	SourceImport   = "import"
	SourceAutofill = "autofill"
)

type EntryMetadata struct {
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Source     string     `json:"source"`
	UsageCount int        `json:"usageCount"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
}

// MemoryEntry is a stored question/answer fact usable to fill forms.
type MemoryEntry struct {
	ID          string        `json:"id"`
	SyncID      string        `json:"syncId,omitempty"` // reserved for sync, newest-wins stub
	Question    string        `json:"question,omitempty"`
	Answer      string        `json:"answer"`
	Category    Category      `json:"category"`
	Tags        []string      `json:"tags,omitempty"`
	Confidence  float64       `json:"confidence"`
	ContentHash string        `json:"contentHash,omitempty"`
	Metadata    EntryMetadata `json:"metadata"`
	Embedding   []float32     `json:"-"` // reserved, unused
}

// Validate rejects malformed entries instead of coercing them.
func (e MemoryEntry) Validate() error {
	if strings.TrimSpace(e.Answer) == "" {
		return fmt.Errorf("%w: empty answer", ErrInvalidEntry)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidEntry, e.Category)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of [0,1]", ErrInvalidEntry, e.Confidence)
	}
	if !e.Metadata.CreatedAt.IsZero() && !e.Metadata.UpdatedAt.IsZero() &&
		e.Metadata.UpdatedAt.Before(e.Metadata.CreatedAt) {
		return fmt.Errorf("%w: updatedAt before createdAt", ErrInvalidEntry)
	}
	return nil
}

// Rect is the on-page bounding box of a detected element, used for
// highlighting. Zero when the snapshot carried no layout data.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type FieldMetadata struct {
	Label       string   `json:"label,omitempty"`
	LabelSource string   `json:"labelSource,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Type        string   `json:"type"`
	Purpose     string   `json:"purpose,omitempty"`
	Rect        Rect     `json:"rect"`
	Value       string   `json:"value,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	ReadOnly    bool     `json:"readonly,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// DetectedField is one fillable element found in a detection pass. Opids are
// unique within the pass but not stable across reloads.
type DetectedField struct {
	Opid     string        `json:"opid"`
	Selector string        `json:"selector"`
	FormOpid string        `json:"formOpid"`
	Metadata FieldMetadata `json:"metadata"`
}

type DetectedForm struct {
	Opid   string          `json:"opid"`
	Name   string          `json:"name,omitempty"`
	Action string          `json:"action,omitempty"`
	Method string          `json:"method,omitempty"`
	Fields []DetectedField `json:"fields"`
}

type WebsiteContext struct {
	URL         string            `json:"url"`
	Domain      string            `json:"domain"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	SiteType    string            `json:"siteType"`
	OpenGraph   map[string]string `json:"openGraph,omitempty"`
}

type DetectFormsResult struct {
	Success        bool            `json:"success"`
	Forms          []DetectedForm  `json:"forms,omitempty"`
	TotalFields    int             `json:"totalFields"`
	WebsiteContext *WebsiteContext `json:"websiteContext,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// FieldMapping is the match result for one field. A nil Value means no
// confident match; autopilot must treat its confidence as zero.
type FieldMapping struct {
	Selector   string  `json:"selector"`
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
	AutoFill   bool    `json:"autoFill,omitempty"`
	MemoryID   string  `json:"memoryId,omitempty"`
}

// EffectiveConfidence folds the nil-value rule into one place.
func (m FieldMapping) EffectiveConfidence() float64 {
	if m.Value == nil {
		return 0
	}
	return m.Confidence
}

type FormMapping struct {
	URL        string          `json:"url"`
	FormOpid   string          `json:"formOpid,omitempty"`
	Fields     []DetectedField `json:"fields"`
	Mappings   []FieldMapping  `json:"mappings"`
	Confidence float64         `json:"confidence"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type SessionStatus string

const (
	StatusDetecting SessionStatus = "detecting"
	StatusMatching  SessionStatus = "matching"
	StatusReviewing SessionStatus = "reviewing"
	StatusFilling   SessionStatus = "filling"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusDetecting, StatusMatching, StatusReviewing, StatusFilling, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FillSession is one end-to-end attempt to detect, match and fill a page.
type FillSession struct {
	ID           string        `json:"id"`
	FormMappings []FormMapping `json:"formMappings"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// CapturedField is a raw tracked interaction reported by the page script.
type CapturedField struct {
	Opid     string `json:"opid"`
	Selector string `json:"selector,omitempty"`
	Question string `json:"question,omitempty"`
	Value    string `json:"value"`
	Type     string `json:"type"`
	AIFilled bool   `json:"aiFilled,omitempty"`
}

type CategorizedField struct {
	Index      int      `json:"index"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// EncryptedKey is a vault ciphertext with its per-key salt. Decryption needs
// the device fingerprint, which is never persisted.
type EncryptedKey struct {
	Encrypted string `json:"encrypted"`
	Salt      string `json:"salt"`
}
