// Package httpapi exposes the HTTP API (spec §6): query dispatch,
// selection management, and dispatcher status, over the standard
// library's method+pattern ServeMux. Grounded in the teacher's
// internal/httpapi/server.go Server/registerRoutes shape.
package httpapi

import (
	"net/http"

	"contextnexus/internal/cache"
	"contextnexus/internal/dispatcher"
	"contextnexus/internal/events"
	"contextnexus/internal/optimizer"
	"contextnexus/internal/selection"
)

// Server exposes ContextNexus's HTTP API.
type Server struct {
	optimizer     *optimizer.Optimizer
	dispatcher    *dispatcher.Dispatcher
	selection     *selection.Service
	events        *events.Publisher
	statusCtr     *cache.StatusCache
	defaultModel  string
	defaultBudget int

	mux *http.ServeMux
}

// NewServer builds a Server wired to the given engine components.
// defaultModelID/defaultBudget fill options.modelId/the optimize() token
// budget when a request omits them. pub and statusCache may be nil (their
// optional-dependency zero value), in which case events are not published
// and /dispatch/status always recomputes live.
func NewServer(opt *optimizer.Optimizer, disp *dispatcher.Dispatcher, sel *selection.Service, pub *events.Publisher, statusCache *cache.StatusCache, defaultModelID string, defaultBudget int) *Server {
	s := &Server{
		optimizer:     opt,
		dispatcher:    disp,
		selection:     sel,
		events:        pub,
		statusCtr:     statusCache,
		defaultModel:  defaultModelID,
		defaultBudget: defaultBudget,
		mux:           http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /queries", s.handleQuery)

	s.mux.HandleFunc("GET /selection/contexts/{id}/status", s.handleSelectionStatus)
	s.mux.HandleFunc("POST /selection/contexts/{id}/content", s.handleSelectionAdd)
	s.mux.HandleFunc("DELETE /selection/contexts/{id}/content/{cid}", s.handleSelectionRemove)
	s.mux.HandleFunc("PUT /selection/contexts/{id}/content/{cid}/relevance", s.handleSelectionSetRelevance)
	s.mux.HandleFunc("POST /selection/projects/{pid}/suggestions", s.handleSelectionSuggest)
	s.mux.HandleFunc("GET /selection/content/{id}/similar", s.handleSelectionSimilar)

	s.mux.HandleFunc("GET /dispatch/status", s.handleDispatchStatus)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
}
