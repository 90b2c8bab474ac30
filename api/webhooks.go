package api

import (
	"errors"
	"net/http"

	emitter "github.com/hooklab/emitter"
	"github.com/hooklab/emitter/id"
	"github.com/hooklab/emitter/webhook"
)

type webhookRequest struct {
	URL        string   `json:"url"`
	Enabled    bool     `json:"enabled"`
	Secret     string   `json:"secret,omitempty"`
	Algorithm  string   `json:"algorithm,omitempty"`
	EventTypes []string `json:"event_types"`
	RateLimit  int      `json:"rate_limit,omitempty"`
}

func (req webhookRequest) input() webhook.Input {
	return webhook.Input{
		URL:        req.URL,
		Enabled:    req.Enabled,
		Secret:     req.Secret,
		Algorithm:  req.Algorithm,
		EventTypes: req.EventTypes,
		RateLimit:  req.RateLimit,
	}
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID := r.PathValue("tenant")
	actor := ActorFromContext(r.Context())
	wh, err := h.emitter.Webhooks().Create(r.Context(), tenantID, actor.Name(), req.input())
	if err != nil {
		h.writeWebhookError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, wh)
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	opts := webhook.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	switch queryParam(r, "enabled") {
	case "true":
		enabled := true
		opts.Enabled = &enabled
	case "false":
		enabled := false
		opts.Enabled = &enabled
	}

	whs, err := h.emitter.Webhooks().List(r.Context(), r.PathValue("tenant"), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, whs)
}

func (h *Handler) countWebhooks(w http.ResponseWriter, r *http.Request) {
	n, err := h.emitter.Webhooks().Count(r.Context(), r.PathValue("tenant"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	wh, err := h.emitter.Webhooks().Get(r.Context(), r.PathValue("tenant"), whID)
	if err != nil {
		h.writeWebhookError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.emitter.Webhooks().Update(r.Context(), r.PathValue("tenant"), whID, req.input()); err != nil {
		h.writeWebhookError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	if err := h.emitter.Webhooks().Delete(r.Context(), r.PathValue("tenant"), whID); err != nil {
		h.writeWebhookError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	secret, err := h.emitter.Webhooks().RotateSecret(r.Context(), r.PathValue("tenant"), whID)
	if err != nil {
		h.writeWebhookError(w, err)
		return
	}

	// The plaintext secret is only returned here, at rotation time.
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (h *Handler) writeWebhookError(w http.ResponseWriter, err error) {
	var verr *webhook.ValidationError
	switch {
	case errors.Is(err, emitter.ErrWebhookNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
