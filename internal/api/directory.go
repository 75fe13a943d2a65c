package api

import (
	"context"
	"net/http"

	"github.com/donnabot/donna/internal/gateway"
	"github.com/donnabot/donna/internal/log"
)

// Directory is the read-only contact and group surface of the gateway.
// *gateway.Client satisfies this.
type Directory interface {
	Contacts(ctx context.Context) ([]gateway.Contact, error)
	Contact(ctx context.Context, contactID string) (*gateway.Contact, error)
	ContactExists(ctx context.Context, phone string) (bool, string, error)
	Groups(ctx context.Context) ([]gateway.Group, error)
	Group(ctx context.Context, groupID string) (*gateway.Group, error)
	GroupParticipants(ctx context.Context, groupID string) ([]gateway.Participant, error)
}

// directoryHandler re-exposes the gateway directory over the local API.
type directoryHandler struct {
	dir    Directory
	logger log.Logger
}

func (h *directoryHandler) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.dir.Contacts(r.Context())
	if err != nil {
		h.logger.Error("failed to list contacts", "error", err)
		writeError(w, http.StatusBadGateway, "gateway_error", "failed to list contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *directoryHandler) getContact(w http.ResponseWriter, r *http.Request) {
	contact, err := h.dir.Contact(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to get contact", "error", err)
		writeError(w, http.StatusBadGateway, "gateway_error", "failed to get contact")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// checkContact verifies a phone number is on WhatsApp.
// GET /contacts/check?phone=+48123123123
func (h *directoryHandler) checkContact(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone query parameter is required")
		return
	}
	exists, chatID, err := h.dir.ContactExists(r.Context(), phone)
	if err != nil {
		h.logger.Error("failed to check contact", "error", err)
		writeError(w, http.StatusBadGateway, "gateway_error", "failed to check contact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists, "chat_id": chatID})
}

func (h *directoryHandler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.dir.Groups(r.Context())
	if err != nil {
		h.logger.Error("failed to list groups", "error", err)
		writeError(w, http.StatusBadGateway, "gateway_error", "failed to list groups")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *directoryHandler) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.dir.Group(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to get group", "error", err)
		writeError(w, http.StatusBadGateway, "gateway_error", "failed to get group")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *directoryHandler) listParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.dir.GroupParticipants(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to list participants", "error", err)
		writeError(w, http.StatusBadGateway, "gateway_error", "failed to list group participants")
		return
	}
	writeJSON(w, http.StatusOK, participants)
}
