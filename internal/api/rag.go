package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/donnabot/donna/internal/log"
	"github.com/donnabot/donna/internal/rag"
)

// Answerer runs one knowledge-base query. *rag.Service satisfies this.
type Answerer interface {
	Query(ctx context.Context, req rag.Request) (*rag.Response, error)
}

// ragHandler serves POST /rag/query.
type ragHandler struct {
	service  Answerer
	validate *validator.Validate
	logger   log.Logger
}

func (h *ragHandler) query(w http.ResponseWriter, r *http.Request) {
	var req rag.Request
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.service.Query(r.Context(), req)
	if err != nil {
		h.logger.Error("knowledge query failed", "error", err)
		writeError(w, http.StatusBadGateway, "query_failed", "failed to answer the question")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
