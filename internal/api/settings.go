package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/settings"
)

// settingsHandler serves the runtime settings over GET/PUT /config.
type settingsHandler struct {
	store  *settings.Store
	logger log.Logger
}

// get returns every stored setting.
func (h *settingsHandler) get(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "settings_unavailable", "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// put applies a bulk update. Unknown keys reject the whole batch; partial
// application would leave the store in a state nobody asked for.
func (h *settingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object of strings")
		return
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "no settings provided")
		return
	}

	if err := h.store.PutAll(r.Context(), updates); err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			writeError(w, http.StatusBadRequest, "unknown_key", err.Error())
			return
		}
		h.logger.Error("failed to update settings", "error", err)
		writeError(w, http.StatusInternalServerError, "settings_unavailable", "failed to update settings")
		return
	}

	all, err := h.store.All(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, updates)
		return
	}
	writeJSON(w, http.StatusOK, all)
}
