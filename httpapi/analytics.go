package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/calebmoss/invoiceflow/core"
)

func (s *Server) handleCSVUpload(w http.ResponseWriter, r *http.Request) {
	files, err := s.multipartFiles(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(files) > 1 {
		writeError(w, core.NewError(core.ErrBadInput, "upload a single CSV file"))
		return
	}
	content, err := s.readUpload(files[0], "csv")
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.store.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	name, err := s.store.SaveUpload(id, files[0].Filename, content)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveMetadata(id, map[string]any{"status": "uploaded", "file_count": 1}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"filename":   name,
		"message":    "CSV uploaded, ready for analysis",
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if !s.store.Exists(id) {
		writeError(w, core.NewError(core.ErrNotFound, "session not found"))
		return
	}
	var body struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, core.NewError(core.ErrBadInput, "invalid JSON body", core.WithWrapped(err)))
		return
	}
	answer, err := s.analysts.Ask(r.Context(), id, body.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      id,
		"question":        body.Question,
		"answer":          answer.Answer,
		"code":            answer.Code,
		"data":            answer.Data,
		"chart_generated": answer.ChartGenerated,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if !s.store.Exists(id) {
		writeError(w, core.NewError(core.ErrNotFound, "session not found"))
		return
	}
	result, err := s.analysts.Insights(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"insights":   result.Insights,
		"summary":    result.Summary,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	html, err := s.analysts.Chart(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)
}
