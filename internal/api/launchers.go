package api

import "net/http"

func (s *Server) handleListLaunchers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.launchers.List())
}
