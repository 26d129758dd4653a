package types

import "time"

// GenerationRequest is the canonical internal representation of one logical
// generation call. It is created per request and mutated in place as the
// executor walks retry and fallback attempts; it is never persisted.
type GenerationRequest struct {
	RequestID string `json:"request_id"`

	// Request content
	Prompt     string     `json:"prompt"`
	ModelAlias string     `json:"model_alias"`
	Parameters Parameters `json:"parameters"`

	// Correlation identifiers for usage attribution. Passed explicitly so the
	// executor stays safe under concurrent use.
	WorkflowID string `json:"workflow_id,omitempty"`
	StepName   string `json:"step_name,omitempty"`

	// Resolved routing state, filled in by the executor. Provider and Model
	// change across fallback attempts.
	Provider string `json:"-"`
	Model    string `json:"-"`

	// Internal tracking
	ReceivedAt      time.Time `json:"-"`
	EstimatedTokens int       `json:"-"`
	Truncated       bool      `json:"-"`
}

// Parameters are the vendor-agnostic generation knobs forwarded to providers.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// GenerationResult is what a successful request returns to the caller.
type GenerationResult struct {
	RequestID    string  `json:"request_id"`
	Text         string  `json:"text"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Truncated    bool    `json:"truncated"`
	Attempts     int     `json:"attempts"`
	DurationMs   int64   `json:"duration_ms"`
}
