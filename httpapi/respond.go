package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/calebmoss/invoiceflow/core"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var app *core.AppError
	if errors.As(err, &app) {
		body["error"] = app.Message
		if len(app.Details) > 0 {
			body["details"] = app.Details
		}
	}
	writeJSON(w, statusFor(err), body)
}

// statusFor maps error codes to HTTP statuses. An explicit AppError.Status
// always wins.
func statusFor(err error) int {
	var app *core.AppError
	if errors.As(err, &app) && app.Status != 0 {
		return app.Status
	}
	switch core.Code(err) {
	case core.ErrBadInput, core.ErrExecution:
		return http.StatusBadRequest
	case core.ErrNotFound, core.ErrNoInput:
		return http.StatusNotFound
	case core.ErrTransient, core.ErrRateLimited, core.ErrUpstreamExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
