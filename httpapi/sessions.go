package httpapi

import (
	"net/http"

	"github.com/calebmoss/invoiceflow/session"
)

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]session.Info, 0, len(ids))
	for _, id := range ids {
		info, err := s.store.Info(id)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}

func (s *Server) handleSessionDeleteAll(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	deleted := 0
	for _, id := range ids {
		if err := s.store.Delete(id); err == nil {
			deleted++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"message": "all sessions deleted",
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	info, err := s.store.Info(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if err := s.store.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"message":    "session deleted",
	})
}
