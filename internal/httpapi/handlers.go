package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"contextnexus/internal/core"
	"contextnexus/internal/dispatcher"
	"contextnexus/internal/events"
	"contextnexus/internal/observability"
	"contextnexus/internal/optimizer"
	"contextnexus/internal/promptbuilder"
	"contextnexus/internal/selection"
	"contextnexus/internal/tokencount"
	"contextnexus/internal/validation"
)

// queryOptions mirrors the optional options object on POST /queries.
type queryOptions struct {
	ModelID     string  `json:"modelId"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Stream      bool    `json:"stream"`
}

type queryRequest struct {
	Query     string       `json:"query"`
	ContextID string       `json:"contextId"`
	Options   queryOptions `json:"options"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, core.Validation("body", "unreadable"))
		return
	}
	var req queryRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		respondError(w, http.StatusBadRequest, core.Validation("body", "invalid JSON"))
		return
	}
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, core.Validation("query", "required"))
		return
	}
	contextID, err := validation.ContextID(req.ContextID)
	if err != nil || req.ContextID == "" {
		respondError(w, http.StatusBadRequest, core.Validation("contextId", "required"))
		return
	}

	modelID := req.Options.ModelID
	if modelID == "" {
		modelID = s.defaultModel
	}

	budget := s.defaultBudget
	if req.Options.MaxTokens > 0 {
		budget = req.Options.MaxTokens
	}

	optimized, err := s.optimizer.Optimize(ctx, contextID, req.Query, budget, optimizer.Options{})
	if err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).
			RawJSON("body", observability.RedactJSON(rawBody)).
			Str("contextId", contextID).
			Msg("optimize_failed")
		respondError(w, statusFromError(err), err)
		return
	}

	prompt := promptbuilder.Build(req.Query, optimized, modelID, promptbuilder.Options{})

	dispatchOpts := dispatcher.DispatchOptions{
		PreferredModelID: modelID,
		MaxTokens:        req.Options.MaxTokens,
		Temperature:      req.Options.Temperature,
		Stream:           req.Options.Stream,
	}

	if req.Options.Stream {
		s.streamQuery(w, r, prompt, dispatchOpts, contextID, optimized)
		return
	}

	start := time.Now()
	text, err := s.dispatcher.Dispatch(ctx, prompt, dispatchOpts)
	latency := time.Since(start)
	if err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("modelId", modelID).Msg("dispatch_failed")
		s.publishDispatchCompleted(ctx, modelID, false, latency, 0)
		respondError(w, statusFromError(err), err)
		return
	}

	tokensUsed := tokencount.Count(text) + optimized.TotalTokens
	s.publishDispatchCompleted(ctx, modelID, true, latency, tokensUsed)
	s.publishContextOptimized(ctx, contextID, optimized)

	respondJSON(w, http.StatusOK, map[string]any{
		"text":       text,
		"tokensUsed": tokensUsed,
		"modelId":    modelID,
	})
}

func (s *Server) publishDispatchCompleted(ctx context.Context, modelID string, success bool, latency time.Duration, tokensUsed int) {
	if s.events == nil {
		return
	}
	s.events.PublishDispatchCompleted(ctx, events.DispatchCompletedEvent{
		ModelID:    modelID,
		Success:    success,
		LatencyMS:  latency.Milliseconds(),
		TokensUsed: tokensUsed,
	})
}

func (s *Server) publishContextOptimized(ctx context.Context, contextID string, oc core.OptimizedContext) {
	if s.events == nil {
		return
	}
	compressed := false
	for _, it := range oc.Items {
		if it.Metadata["compressed"] == "true" {
			compressed = true
			break
		}
	}
	s.events.PublishContextOptimized(ctx, events.ContextOptimizedEvent{
		ContextID:            contextID,
		SelectedContentCount: oc.SelectedContentCount,
		TotalTokens:          oc.TotalTokens,
		CompressionApplied:   compressed,
	})
}

// --- selection ---

type addContentRequest struct {
	ContentID string   `json:"contentId"`
	Relevance *float64 `json:"relevance"`
}

func (s *Server) handleSelectionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ContextID(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	status, err := s.selection.Status(r.Context(), id)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleSelectionAdd(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ContextID(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var req addContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, core.Validation("body", "invalid JSON"))
		return
	}
	contentID, err := validation.ContentID(req.ContentID)
	if err != nil || req.ContentID == "" {
		respondError(w, http.StatusBadRequest, core.Validation("contentId", "required"))
		return
	}
	if err := s.selection.Add(r.Context(), id, contentID, req.Relevance); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleSelectionRemove(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ContextID(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cid, err := validation.ContentID(r.PathValue("cid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.selection.Remove(r.Context(), id, cid); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

type setRelevanceRequest struct {
	Relevance float64 `json:"relevance"`
}

func (s *Server) handleSelectionSetRelevance(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ContextID(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cid, err := validation.ContentID(r.PathValue("cid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var req setRelevanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, core.Validation("body", "invalid JSON"))
		return
	}
	if err := s.selection.SetRelevance(r.Context(), id, cid, req.Relevance); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{})
}

type suggestRequest struct {
	Query   string `json:"query"`
	Options struct {
		SortBy   string `json:"sortBy"`
		MaxItems int    `json:"maxItems"`
	} `json:"options"`
}

func (s *Server) handleSelectionSuggest(w http.ResponseWriter, r *http.Request) {
	pid, err := validation.ProjectID(r.PathValue("pid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, core.Validation("body", "invalid JSON"))
		return
	}
	contextID := r.URL.Query().Get("contextId")

	suggestions, err := s.selection.Suggest(r.Context(), pid, req.Query, contextID, selection.SuggestOptions{
		SortBy:   selection.SortBy(req.Options.SortBy),
		MaxItems: req.Options.MaxItems,
	})
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleSelectionSimilar(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ContentID(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 10
	}
	projectID := r.URL.Query().Get("projectId")

	items, err := s.selection.FindSimilar(r.Context(), id, limit, projectID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// --- dispatch status & health ---

func (s *Server) handleDispatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if cached, ok := s.statusCtr.Get(ctx); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	snapshot := s.dispatcher.Status()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		respondError(w, http.StatusInternalServerError, core.Internal(err))
		return
	}
	_ = s.statusCtr.Set(ctx, payload)
	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// --- helpers ---

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// statusFromError maps a core.Kind to its §7 HTTP status.
func statusFromError(err error) int {
	switch core.ErrorOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindConflict:
		return http.StatusConflict
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	case core.KindUnavailable:
		return http.StatusServiceUnavailable
	case core.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
