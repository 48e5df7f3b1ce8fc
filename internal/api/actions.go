package api

import (
	"net/http"

	"github.com/seantiz/benchrun/internal/notify"
)

type actionResponse struct {
	Action string `json:"action"`
	Status string `json:"status"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.actions.Export(r.Context())
	s.writeJSON(w, http.StatusAccepted, actionResponse{Action: "export", Status: "accepted"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.actions.Upload(r.Context())
	s.writeJSON(w, http.StatusAccepted, actionResponse{Action: "upload", Status: "accepted"})
}

func (s *Server) handleViewResults(w http.ResponseWriter, r *http.Request) {
	u := s.actions.ResultsURL()
	if u == "" {
		s.writeError(w, http.StatusNotFound, "results url not configured")
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	notices := s.feed.Recent()
	if notices == nil {
		notices = []notify.Notice{}
	}
	s.writeJSON(w, http.StatusOK, notices)
}
