package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"contextnexus/internal/core"
	"contextnexus/internal/dispatcher"
	"contextnexus/internal/tokencount"
)

// streamQuery serves POST /queries when options.stream is set: each
// partial chunk is written as one SSE "data:" line, followed by a final
// event carrying {done: true, tokensUsed}.
func (s *Server) streamQuery(w http.ResponseWriter, r *http.Request, prompt core.Prompt, opts dispatcher.DispatchOptions, contextID string, optimized core.OptimizedContext) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, core.Internal(fmt.Errorf("streaming unsupported by response writer")))
		return
	}

	start := time.Now()
	modelID, chunks, err := s.dispatcher.DispatchStream(ctx, prompt, opts)
	if err != nil {
		s.publishDispatchCompleted(ctx, opts.PreferredModelID, false, time.Since(start), 0)
		respondError(w, statusFromError(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var full string
	for c := range chunks {
		full += c.Text
		if err := writeSSE(w, map[string]any{"text": c.Text}); err != nil {
			return
		}
		flusher.Flush()
	}

	tokensUsed := tokencount.Count(full) + optimized.TotalTokens
	_ = writeSSE(w, map[string]any{"done": true, "tokensUsed": tokensUsed})
	flusher.Flush()

	s.publishDispatchCompleted(ctx, modelID, true, time.Since(start), tokensUsed)
	s.publishContextOptimized(ctx, contextID, optimized)
}

func writeSSE(w http.ResponseWriter, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}
