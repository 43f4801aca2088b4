// Package httpapi implements the HTTP surface described by the external
// interfaces contract: one handler per endpoint, wired together by
// internal/router. Handlers stay thin — validation and JSON shaping only —
// delegating everything else to the package collaborators passed in via
// each handler's Deps struct.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/atlas-ai/knowledge-core/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("httpapi: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	resp := map[string]any{"success": false, "message": err.Error()}
	if apperr.KindOf(err) == apperr.KindQuotaExceeded {
		resp["message"] = "you're sending messages too quickly, please slow down"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return apperr.Validation("malformed request body: %v", err)
	}
	return nil
}
