package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/benchrun/internal/catalog"
)

// setEnabledRequest is the JSON body for PUT /v1/benchmarks/{group}/{id}.
type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type setEnabledResponse struct {
	Group   string `json:"group"`
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleListBenchmarks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.catalog.Groups())
}

func (s *Server) handleSetBenchmarkEnabled(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	id := chi.URLParam(r, "id")

	var req setEnabledRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := s.catalog.SetEnabled(group, id, *req.Enabled); err != nil {
		if errors.Is(err, catalog.ErrUnknownBenchmark) {
			s.writeError(w, http.StatusNotFound, "benchmark not found")
			return
		}
		s.logger.Error("set benchmark enabled", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update benchmark")
		return
	}

	s.writeJSON(w, http.StatusOK, setEnabledResponse{Group: group, ID: id, Enabled: *req.Enabled})
}
