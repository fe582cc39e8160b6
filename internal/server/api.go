package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/matijazezelj/terramap/internal/graph"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	runs, err := s.archive.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []graph.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// runParam parses the {id} path value and loads the run, writing the
// error response itself when the run cannot be served.
func (s *Server) runParam(w http.ResponseWriter, r *http.Request) (*graph.Document, *graph.Run, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return nil, nil, false
	}

	doc, run, err := s.archive.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("getting run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil, false
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, nil, false
	}
	return doc, run, true
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	_, run, ok := s.runParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.runParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRunDOT(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.runParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(graph.ExportDOT(graph.FromRaw(doc.Graph, doc.Meta))))
}

func (s *Server) handleRunMermaid(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := s.runParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.ExportMermaid(graph.FromRaw(doc.Graph, doc.Meta))))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.archive.RunCount(r.Context())
	if err != nil {
		s.logger.Error("counting runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": count})
}
