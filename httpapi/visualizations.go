package httpapi

import (
	"net/http"
	"strings"
)

func (s *Server) handleVizColumns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	columns, err := s.charts.Columns(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"columns":    columns,
	})
}

func (s *Server) handleVizGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	selected := selectedColumns(r.URL.Query()["columns"])
	specs, err := s.charts.Generate(id, selected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"count":      len(specs),
		"charts":     specs,
	})
}

// selectedColumns accepts both repeated columns params and a single
// comma-separated value.
func selectedColumns(raw []string) []string {
	var out []string
	for _, value := range raw {
		for _, col := range strings.Split(value, ",") {
			if col = strings.TrimSpace(col); col != "" {
				out = append(out, col)
			}
		}
	}
	return out
}
