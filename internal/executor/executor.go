package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lessonforge/scribe/internal/config"
	"github.com/lessonforge/scribe/internal/provider"
	"github.com/lessonforge/scribe/internal/ratelimit"
	"github.com/lessonforge/scribe/internal/registry"
	"github.com/lessonforge/scribe/internal/telemetry"
	"github.com/lessonforge/scribe/internal/types"
	"github.com/lessonforge/scribe/internal/usage"
	"github.com/lessonforge/scribe/internal/window"
)

// ErrAllProvidersExhausted is returned when the originating provider and its
// whole fallback chain failed; it wraps the last classified provider error.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ErrBudgetExceeded is returned when a workflow is over its daily spend cap.
var ErrBudgetExceeded = errors.New("daily spend budget exceeded")

const errClassExhausted = "all_providers_exhausted"

// Executor runs one logical generation request through alias resolution,
// context-window fitting, provider dispatch with retry/backoff, and provider
// fallback. Every terminal state writes exactly one outcome to the usage
// tracker before control returns to the caller.
type Executor struct {
	registry *registry.Registry
	resolver *registry.Resolver
	window   *window.Manager
	clients  *provider.Clients
	tracker  *usage.Tracker

	breakers *BreakerSet
	backoff  BackoffPolicy
	routing  config.RoutingConfig

	limiter *ratelimit.Limiter
	budget  *ratelimit.BudgetTracker
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Options carries the optional collaborators. Limiter, Budget, and Metrics
// may be nil; a nil logger falls back to slog.Default.
type Options struct {
	Routing config.RoutingConfig
	Limiter *ratelimit.Limiter
	Budget  *ratelimit.BudgetTracker
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

func New(reg *registry.Registry, res *registry.Resolver, win *window.Manager, clients *provider.Clients, tracker *usage.Tracker, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: reg,
		resolver: res,
		window:   win,
		clients:  clients,
		tracker:  tracker,
		breakers: NewBreakerSet(opts.Routing.CircuitBreaker),
		backoff:  NewBackoffPolicy(opts.Routing.Backoff),
		routing:  opts.Routing,
		limiter:  opts.Limiter,
		budget:   opts.Budget,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Generate executes one generation request to a terminal state.
func (e *Executor) Generate(ctx context.Context, req *types.GenerationRequest) (*types.GenerationResult, error) {
	start := time.Now()
	req.ReceivedAt = start
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	providerName, model, err := e.resolver.Resolve(req.ModelAlias)
	if err != nil {
		e.recordTerminal(ctx, req, start, nil, 0, types.StatusError, "unknown_alias", 0)
		return nil, err
	}
	req.Provider, req.Model = providerName, model

	if e.budget != nil && e.routing.DailySpendLimitCents > 0 {
		budget, _ := e.budget.CheckDailySpend(ctx, req.WorkflowID, e.routing.DailySpendLimitCents)
		if !budget.Allowed {
			e.recordTerminal(ctx, req, start, nil, 0, types.StatusError, "budget_exceeded", 0)
			return nil, fmt.Errorf("%w: workflow %s spent %d of %d cents today",
				ErrBudgetExceeded, req.WorkflowID, budget.SpentCents, budget.LimitCents)
		}
	}

	// Fallbacks come from the originating provider's chain only; a fallback
	// provider's own chain is ignored to keep fallback depth bounded.
	origin, err := e.registry.Provider(providerName)
	if err != nil {
		e.recordTerminal(ctx, req, start, nil, 0, types.StatusError, "unknown_alias", 0)
		return nil, err
	}
	chain := append([]string{providerName}, origin.FallbackChain...)

	prompt := req.Prompt
	attempts := 0
	var lastErr error

	for i, name := range chain {
		pc, err := e.registry.Provider(name)
		if err != nil {
			continue
		}

		attemptModel := model
		if i > 0 {
			// Fallback providers serve their configured default model.
			attemptModel = pc.DefaultModel
			if attemptModel == "" {
				continue
			}
			if e.metrics != nil {
				e.metrics.RecordFallback(chain[i-1], name)
			}
			e.logger.Warn("falling back to next provider",
				"request_id", req.RequestID,
				"from", chain[i-1],
				"to", name,
				"error", lastErr,
			)
		}

		capability, err := e.registry.Model(name, attemptModel)
		if err != nil {
			continue
		}

		// Re-fit for each provider: a fallback model may have a smaller
		// window. The already-truncated prompt carries forward.
		requested := 0
		if req.Parameters.MaxTokens != nil {
			requested = *req.Parameters.MaxTokens
		}
		fitted, truncated := e.window.Fit(prompt, capability, requested)
		if truncated {
			req.Truncated = true
			if e.metrics != nil {
				e.metrics.RecordTruncation(name, attemptModel)
			}
		}
		prompt = fitted
		req.EstimatedTokens = window.EstimateTokens(prompt)

		client, ok := e.clients.Get(name)
		if !ok {
			lastErr = &provider.Error{Class: provider.ClassUnavailable, Provider: name, Message: "no client registered"}
			continue
		}

		req.Provider, req.Model = name, attemptModel

		result, err := e.dispatch(ctx, client, pc, name, attemptModel, prompt, req.Parameters, req.RequestID, &attempts)
		if err == nil {
			cost := usage.CostUSD(capability, pc.DefaultPricing, result.InputTokens, result.OutputTokens)
			e.recordTerminal(ctx, req, start, result, cost, types.StatusSuccess, "", attempts)
			if e.budget != nil {
				if err := e.budget.RecordSpend(ctx, req.WorkflowID, cost); err != nil {
					e.logger.Error("failed to record spend", "error", err, "workflow_id", req.WorkflowID)
				}
			}
			duration := time.Since(start)
			e.logger.Info("generation completed",
				"request_id", req.RequestID,
				"alias", req.ModelAlias,
				"provider", name,
				"model", attemptModel,
				"input_tokens", result.InputTokens,
				"output_tokens", result.OutputTokens,
				"cost_usd", cost,
				"truncated", req.Truncated,
				"attempts", attempts,
				"duration_ms", duration.Milliseconds(),
			)
			return &types.GenerationResult{
				RequestID:    req.RequestID,
				Text:         result.Text,
				Provider:     name,
				Model:        attemptModel,
				InputTokens:  result.InputTokens,
				OutputTokens: result.OutputTokens,
				CostUSD:      cost,
				Truncated:    req.Truncated,
				Attempts:     attempts,
				DurationMs:   duration.Milliseconds(),
			}, nil
		}

		lastErr = err
		class := provider.ClassOf(err)
		switch class {
		case provider.ClassCancelled:
			e.recordTerminal(ctx, req, start, nil, 0, types.StatusCancelled, string(class), attempts)
			return nil, err
		case provider.ClassAuth, provider.ClassInvalidRequest:
			// Configuration or caller bug: no retry, no fallback.
			e.recordTerminal(ctx, req, start, nil, 0, types.StatusError, string(class), attempts)
			return nil, err
		}
		// Retries exhausted or provider unavailable: next provider in chain.
	}

	if lastErr == nil {
		lastErr = &provider.Error{Class: provider.ClassUnavailable, Provider: providerName, Message: "no dispatchable provider in fallback chain"}
	}
	e.recordTerminal(ctx, req, start, nil, 0, types.StatusError, errClassExhausted, attempts)
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, lastErr)
}

// dispatch runs the retry loop against a single provider. It returns the
// provider result, or the last classified error once retries are exhausted.
func (e *Executor) dispatch(ctx context.Context, client provider.Client, pc config.ProviderConfig, name, model, prompt string, params types.Parameters, requestID string, attempts *int) (*provider.Result, error) {
	// Unset inherits the routing default; a negative value disables retries.
	maxRetries := pc.MaxRetries
	if maxRetries == 0 {
		maxRetries = e.routing.DefaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if !e.breakers.Allow(name) {
			return nil, &provider.Error{Class: provider.ClassUnavailable, Provider: name, Message: "circuit breaker open"}
		}

		var genErr error
		if e.limiter != nil && e.routing.ProviderRPM > 0 {
			lim, _ := e.limiter.CheckProvider(ctx, name, e.routing.ProviderRPM, time.Minute)
			if !lim.Allowed {
				genErr = &provider.Error{
					Class:      provider.ClassRateLimited,
					Provider:   name,
					Message:    "provider request rate cap reached",
					RetryAfter: lim.RetryAfter,
				}
			}
		}

		var result *provider.Result
		if genErr == nil {
			*attempts++
			result, genErr = client.Generate(ctx, model, prompt, params)
		}
		if genErr == nil {
			e.breakers.RecordSuccess(name)
			if e.metrics != nil {
				e.metrics.RecordAttempt(name, model, "success")
			}
			return result, nil
		}

		class := provider.ClassOf(genErr)
		if e.metrics != nil {
			e.metrics.RecordAttempt(name, model, string(class))
		}
		if class == provider.ClassCancelled {
			return nil, genErr
		}

		e.breakers.RecordFailure(name)
		if !class.Retryable() || attempt >= maxRetries {
			return nil, genErr
		}

		var hint time.Duration
		var pe *provider.Error
		if errors.As(genErr, &pe) {
			hint = pe.RetryAfter
		}
		delay := e.backoff.Delay(attempt, hint)
		e.logger.Warn("retrying provider after backoff",
			"request_id", requestID,
			"provider", name,
			"model", model,
			"attempt", attempt+1,
			"class", string(class),
			"delay_ms", delay.Milliseconds(),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, &provider.Error{Class: provider.ClassCancelled, Provider: name, Message: err.Error()}
		}
	}
}

// recordTerminal writes the single outcome for a terminal request state.
func (e *Executor) recordTerminal(ctx context.Context, req *types.GenerationRequest, start time.Time, result *provider.Result, cost float64, status types.OutcomeStatus, errClass string, attempts int) {
	outcome := types.GenerationOutcome{
		Timestamp:  start,
		WorkflowID: req.WorkflowID,
		StepName:   req.StepName,
		Provider:   req.Provider,
		Model:      req.Model,
		CostUSD:    cost,
		Duration:   time.Since(start),
		Status:     status,
		ErrorClass: errClass,
		Attempts:   attempts,
		Truncated:  req.Truncated,
	}
	if result != nil {
		in, out := result.InputTokens, result.OutputTokens
		outcome.InputTokens = &in
		outcome.OutputTokens = &out
	}
	// Recording must survive caller cancellation.
	e.tracker.Record(context.WithoutCancel(ctx), outcome)

	if e.metrics != nil {
		inTokens, outTokens := 0, 0
		if result != nil {
			inTokens, outTokens = result.InputTokens, result.OutputTokens
		}
		e.metrics.RecordRequest(telemetry.RequestLabels{
			Provider:     req.Provider,
			Model:        req.Model,
			Status:       string(status),
			ErrorClass:   errClass,
			DurationMs:   float64(outcome.Duration.Milliseconds()),
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			CostUSD:      cost,
		})
	}
}
