package api

import (
	"encoding/json"
	"errors"
	"net/http"

	emitter "github.com/hooklab/emitter"
	"github.com/hooklab/emitter/delivery"
	"github.com/hooklab/emitter/id"
)

func (h *Handler) listSends(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	opts := delivery.SendListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	sends, err := h.emitter.ListSendsByWebhook(r.Context(), r.PathValue("tenant"), whID, opts)
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sends)
}

func (h *Handler) getSend(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}
	sendID, err := id.ParseSendID(r.PathValue("sid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid send ID")
		return
	}

	// Ownership check: the webhook must belong to the tenant and the send
	// to the webhook.
	if _, err := h.emitter.Webhooks().Get(r.Context(), r.PathValue("tenant"), whID); err != nil {
		h.writeSendError(w, err)
		return
	}
	rec, err := h.emitter.GetSend(r.Context(), sendID)
	if err != nil || rec.WebhookID != whID {
		writeError(w, http.StatusNotFound, "send not found")
		return
	}

	resp := sendDetail{SendRecord: rec}
	if !rec.EventID.IsNil() {
		if se, err := h.emitter.GetEvent(r.Context(), rec.EventID); err == nil {
			resp.Payload = se.Payload
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// sendDetail is a send record joined with the delivered payload, which
// lives on the stored event rather than on every attempt row.
type sendDetail struct {
	*delivery.SendRecord
	Payload json.RawMessage `json:"payload,omitempty"`
}

// resend schedules one new delivery of an already-sent occurrence using
// the webhook's current URL and secret. 202 means scheduled.
func (h *Handler) resend(w http.ResponseWriter, r *http.Request) {
	whID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}
	sendID, err := id.ParseSendID(r.PathValue("sid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid send ID")
		return
	}

	if err := h.emitter.Resend(r.Context(), r.PathValue("tenant"), whID, sendID); err != nil {
		h.writeSendError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emitter.ErrWebhookNotFound):
		writeError(w, http.StatusNotFound, "webhook not found")
	case errors.Is(err, emitter.ErrSendNotFound):
		writeError(w, http.StatusNotFound, "send not found")
	case errors.Is(err, emitter.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
