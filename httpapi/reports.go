package httpapi

import (
	"net/http"

	"github.com/calebmoss/invoiceflow/core"
)

func (s *Server) handleReportGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if !s.store.Exists(id) {
		writeError(w, core.NewError(core.ErrNotFound, "session not found"))
		return
	}
	text, err := s.reports.Generate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"report":     text,
	})
}

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	text, err := s.reports.Saved(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"report":     text,
	})
}
