package window

import (
	"log/slog"

	"github.com/lessonforge/scribe/internal/config"
)

// avgCharsPerToken is the fixed divisor for the token estimation heuristic.
// Cost and truncation figures elsewhere in the system are calibrated against
// this approximation; do not replace it with exact tokenization.
const avgCharsPerToken = 4

// EstimateTokens approximates the token count of a prompt from its length.
// The truncation boundary derived from it is advisory, not guaranteed-exact.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + avgCharsPerToken - 1) / avgCharsPerToken
}

// Manager fits prompts into a model's context window, truncating from the
// configured end when the estimated token count exceeds the budget.
type Manager struct {
	truncateFrom string
	safetyMargin int
	logger       *slog.Logger
}

func NewManager(cfg config.WindowConfig, logger *slog.Logger) *Manager {
	truncateFrom := cfg.TruncateFrom
	if truncateFrom != "tail" {
		truncateFrom = "head"
	}
	return &Manager{
		truncateFrom: truncateFrom,
		safetyMargin: cfg.SafetyMarginTokens,
		logger:       logger,
	}
}

// Fit returns the prompt, truncated if its estimate exceeds
// contextWindow - reservedOutput - safetyMargin. Reserved output is the larger
// of the caller's requested output tokens and the model's default max output.
// Truncation is a degraded-but-successful path: it is logged, never an error.
func (m *Manager) Fit(prompt string, cap config.ModelCapability, requestedOutput int) (string, bool) {
	reserved := cap.MaxOutputTokens
	if requestedOutput > reserved {
		reserved = requestedOutput
	}

	budget := cap.ContextWindow - reserved - m.safetyMargin
	if budget < 0 {
		budget = 0
	}

	estimate := EstimateTokens(prompt)
	if estimate <= budget {
		return prompt, false
	}

	keep := budget * avgCharsPerToken
	if keep > len(prompt) {
		keep = len(prompt)
	}

	var truncated string
	if m.truncateFrom == "tail" {
		truncated = prompt[:keep]
	} else {
		truncated = prompt[len(prompt)-keep:]
	}

	m.logger.Warn("prompt truncated to fit context window",
		"original_tokens", estimate,
		"truncated_tokens", EstimateTokens(truncated),
		"budget_tokens", budget,
		"context_window", cap.ContextWindow,
		"reserved_output", reserved,
		"truncate_from", m.truncateFrom,
	)
	return truncated, true
}
