package api

import (
	"context"
	"net/http"

	"github.com/donnabot/donna/internal/cost"
	"github.com/donnabot/donna/internal/log"
)

// UsageReader returns accumulated per-model usage. *cost.Meter satisfies this.
type UsageReader interface {
	Totals(ctx context.Context) ([]cost.Usage, error)
}

// usageHandler serves GET /usage.
type usageHandler struct {
	meter  UsageReader
	logger log.Logger
}

func (h *usageHandler) get(w http.ResponseWriter, r *http.Request) {
	totals, err := h.meter.Totals(r.Context())
	if err != nil {
		h.logger.Error("failed to read usage totals", "error", err)
		writeError(w, http.StatusInternalServerError, "usage_unavailable", "failed to read usage totals")
		return
	}
	if totals == nil {
		totals = []cost.Usage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": totals})
}
