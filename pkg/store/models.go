package store

import "time"

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one batch request evaluating a set of brands across a set of
// prompts and models. Status is mutated only by the orchestrator.
type Run struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Status    string    `gorm:"not null;index" json:"status"`
	Notes     string    `json:"notes,omitempty"`
	InputHash string    `gorm:"index" json:"input_hash"`
	CreatedAt time.Time `json:"created_at"`

	Brands    []Brand    `gorm:"many2many:run_brands" json:"brands"`
	Prompts   []Prompt   `gorm:"many2many:run_prompts" json:"prompts"`
	Responses []Response `gorm:"constraint:OnDelete:CASCADE" json:"responses,omitempty"`
}

// Brand is a tracked company or product name, shared across runs.
// Identity is case-insensitive; the first-submitted casing is kept.
type Brand struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// Prompt is a question posed to the LLM backends, shared across runs
// with the same case-insensitive identity rules as Brand.
type Prompt struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Text string `gorm:"uniqueIndex;not null" json:"text"`
}

// Response records one (prompt, model) execution within a run. A
// non-nil Error marks a failed unit. Rows are never updated after
// creation; re-driving a run appends rather than mutates, and the
// "at most one successful response per triple" rule is what makes
// re-drives idempotent.
type Response struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"not null;index:idx_responses_unit" json:"run_id"`
	PromptID  uint      `gorm:"not null;index:idx_responses_unit" json:"prompt_id"`
	Model     string    `gorm:"not null;index:idx_responses_unit" json:"model"`
	LatencyMs float64   `json:"latency_ms"`
	RawText   string    `json:"raw_text"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Prompt   Prompt                 `json:"-"`
	Mentions []ResponseBrandMention `gorm:"constraint:OnDelete:CASCADE" json:"mentions,omitempty"`
}

// ResponseBrandMention is the per-brand analysis of a single response.
// Created alongside its parent response, never mutated. Failed
// responses carry no mention rows.
type ResponseBrandMention struct {
	ID            uint  `gorm:"primaryKey" json:"id"`
	ResponseID    uint  `gorm:"not null;index" json:"response_id"`
	BrandID       uint  `gorm:"not null;index" json:"brand_id"`
	Mentioned     bool  `json:"mentioned"`
	Count         int   `json:"count"`
	PositionIndex *int  `json:"position_index"`
	Brand         Brand `json:"-"`
}

// ProviderKey stores one encrypted API key per backend name. The
// APIKey column always holds the sealed form, never plaintext.
type ProviderKey struct {
	Provider string `gorm:"primaryKey" json:"provider"`
	APIKey   string `gorm:"not null" json:"-"`
}
