package types

import "time"

// OutcomeStatus is the terminal status of a generation request. Cancellation
// is its own status so error-rate reporting is not skewed by callers going
// away.
type OutcomeStatus string

const (
	StatusSuccess   OutcomeStatus = "success"
	StatusError     OutcomeStatus = "error"
	StatusCancelled OutcomeStatus = "cancelled"
)

// GenerationOutcome is the immutable terminal record of one generation
// request, appended to the usage tracker for every request regardless of
// outcome. Token counts are nil when the call never reached a provider.
type GenerationOutcome struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"timestamp"`
	WorkflowID   string        `json:"workflow_id,omitempty"`
	StepName     string        `json:"step_name,omitempty"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	InputTokens  *int          `json:"input_tokens,omitempty"`
	OutputTokens *int          `json:"output_tokens,omitempty"`
	CostUSD      float64       `json:"cost_usd"`
	Duration     time.Duration `json:"duration"`
	Status       OutcomeStatus `json:"status"`
	ErrorClass   string        `json:"error_class,omitempty"`
	Attempts     int           `json:"attempts"`
	Truncated    bool          `json:"truncated"`
}

// UsageReport is derived on demand from recorded outcomes; it is never stored.
type UsageReport struct {
	WorkflowID string         `json:"workflow_id,omitempty"`
	StepName   string         `json:"step_name,omitempty"`
	Lines      []UsageLine    `json:"lines"`
	Totals     UsageAggregate `json:"totals"`
}

// UsageLine aggregates outcomes for one provider+model pair.
type UsageLine struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	UsageAggregate
}

type UsageAggregate struct {
	Count         int64   `json:"count"`
	ErrorCount    int64   `json:"error_count"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	CostUSD       float64 `json:"cost_usd"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
