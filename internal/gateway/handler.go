package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lessonforge/scribe/internal/executor"
	"github.com/lessonforge/scribe/internal/httputil"
	"github.com/lessonforge/scribe/internal/registry"
	"github.com/lessonforge/scribe/internal/types"
	"github.com/lessonforge/scribe/internal/usage"
)

// maxRequestBody caps the accepted request size; prompts beyond this are a
// caller bug, not a truncation case.
const maxRequestBody = 10 << 20

// Handler holds dependencies for the orchestrator HTTP handlers. Executor and
// resolver are accessed through funcs so a config reload can swap them without
// restarting the server.
type Handler struct {
	exec     func() *executor.Executor
	resolver func() *registry.Resolver
	tracker  *usage.Tracker
}

func NewHandler(exec func() *executor.Executor, resolver func() *registry.Resolver, tracker *usage.Tracker) *Handler {
	return &Handler{
		exec:     exec,
		resolver: resolver,
		tracker:  tracker,
	}
}

// Generate handles POST /v1/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	req.RequestID = reqID

	if req.Prompt == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt is required")
		return
	}
	if req.ModelAlias == "" {
		httputil.WriteBadRequestError(w, reqID, "model_alias is required")
		return
	}
	if req.Parameters.MaxTokens != nil && *req.Parameters.MaxTokens < 0 {
		httputil.WriteBadRequestError(w, reqID, "max_tokens must be non-negative")
		return
	}

	result, err := h.exec().Generate(r.Context(), &req)
	if err != nil {
		slog.Warn("generation failed",
			"request_id", reqID,
			"alias", req.ModelAlias,
			"workflow_id", req.WorkflowID,
			"error", err,
			"duration_ms", time.Since(receivedAt).Milliseconds(),
		)
		httputil.WriteFromError(w, reqID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// UsageReport handles GET /v1/usage/report
func (h *Handler) UsageReport(w http.ResponseWriter, r *http.Request) {
	filter := usage.Filter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		StepName:   r.URL.Query().Get("step_name"),
	}
	report := h.tracker.Report(filter)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// ListAliases handles GET /v1/aliases
func (h *Handler) ListAliases(w http.ResponseWriter, r *http.Request) {
	aliases := h.resolver().Aliases()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(aliasListResponse{Aliases: aliases})
}

type aliasListResponse struct {
	Aliases map[string]string `json:"aliases"`
}
