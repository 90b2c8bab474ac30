package api

import (
	"errors"
	"net/http"
	"time"

	emitter "github.com/hooklab/emitter"
	"github.com/hooklab/emitter/dlq"
	"github.com/hooklab/emitter/id"
)

func (h *Handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	opts := dlq.ListOpts{
		Offset:   queryInt(r, "offset", 0),
		Limit:    queryInt(r, "limit", 50),
		TenantID: queryParam(r, "tenant_id"),
	}
	if raw := queryParam(r, "webhook_id"); raw != "" {
		whID, err := id.ParseWebhookID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid webhook ID")
			return
		}
		opts.WebhookID = &whID
	}
	if raw := queryParam(r, "from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		opts.From = &from
	}
	if raw := queryParam(r, "to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		opts.To = &to
	}

	entries, err := h.emitter.DLQ().List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) replayDLQ(w http.ResponseWriter, r *http.Request) {
	dlqID, err := id.ParseDLQID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ entry ID")
		return
	}

	if err := h.emitter.ReplayDLQ(r.Context(), dlqID); err != nil {
		if errors.Is(err, emitter.ErrDLQNotFound) {
			writeError(w, http.StatusNotFound, "DLQ entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
