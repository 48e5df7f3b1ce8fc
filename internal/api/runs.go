package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/model"
	"github.com/seantiz/benchrun/internal/store"
)

// startRunRequest is the optional JSON body for POST /v1/runs. Without
// groups every enabled group is run.
type startRunRequest struct {
	Groups []string `json:"groups"`
}

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		run *model.Run
		err error
	)
	if len(req.Groups) == 0 {
		run, err = s.actions.StartAll(r.Context())
	} else {
		ds, unknown := s.selectGroups(req.Groups)
		if unknown != "" {
			s.writeError(w, http.StatusBadRequest, "unknown or disabled group: "+unknown)
			return
		}
		run, err = s.engine.StartRun(r.Context(), ds)
	}
	if err != nil {
		s.logger.Error("start run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

// selectGroups returns the descriptors for names in request order. The
// first name without a launchable descriptor is returned as unknown.
func (s *Server) selectGroups(names []string) ([]launcher.Descriptor, string) {
	byName := make(map[string]launcher.Descriptor)
	for _, d := range s.catalog.Descriptors() {
		byName[d.Group()] = d
	}

	ds := make([]launcher.Descriptor, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, n
		}
		ds = append(ds, d)
	}
	return ds, ""
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleActiveRun(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.State(r.Context())
	if err != nil {
		s.logger.Error("get sequencer state", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "sequencer unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRunExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run for executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	execs, err := s.store.ListExecutions(r.Context(), id)
	if err != nil {
		s.logger.Error("list executions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []*model.Execution{}
	}

	s.writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ex, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	s.writeJSON(w, http.StatusOK, ex)
}
