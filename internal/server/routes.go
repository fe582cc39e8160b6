package server

import "net/http"

// RegisterRoutes registers all API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, s *Server) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRunByID)
	mux.HandleFunc("GET /api/v1/runs/{id}/graph", s.handleRunGraph)
	mux.HandleFunc("GET /api/v1/runs/{id}/export/dot", s.handleRunDOT)
	mux.HandleFunc("GET /api/v1/runs/{id}/export/mermaid", s.handleRunMermaid)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
}
