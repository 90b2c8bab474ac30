package api

import (
	"errors"
	"net"
	"net/http"

	emitter "github.com/hooklab/emitter"
	"github.com/hooklab/emitter/event"
	"github.com/hooklab/emitter/id"
)

type publishEventRequest struct {
	Type    string            `json:"type"`
	Details map[string]string `json:"details,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// publishEvent accepts an application-submitted custom event for the
// tenant. Delivery is asynchronous; a 202 means accepted, not delivered.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Actor details come from the authenticated identity, never from the
	// request body.
	tenantID := r.PathValue("tenant")
	actor := ActorFromContext(r.Context())
	evt := &event.Event{
		Type:     req.Type,
		TenantID: tenantID,
		Details:  req.Details,
		Error:    req.Error,
		AuthDetails: &event.AuthDetails{
			TenantID:  tenantID,
			ClientID:  actor.ClientID,
			UserID:    actor.UserID,
			Username:  actor.Username,
			SessionID: actor.SessionID,
			IPAddress: remoteIP(r),
		},
	}

	if err := h.emitter.Publish(r.Context(), nil, evt); err != nil {
		h.writePublishError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"uid": evt.UID})
}

// remoteIP strips the port from the caller's address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) writePublishError(w http.ResponseWriter, err error) {
	var verr *event.ValidationError
	switch {
	case errors.Is(err, emitter.ErrReservedEventType):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, emitter.ErrEventTypeDeprecated):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, emitter.ErrPayloadValidationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	opts := event.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}

	events, err := h.emitter.ListEvents(r.Context(), r.PathValue("tenant"), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	se, err := h.emitter.GetEvent(r.Context(), evtID)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	if se.TenantID != r.PathValue("tenant") {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, se)
}

func (h *Handler) listEventSends(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	se, err := h.emitter.GetEvent(r.Context(), evtID)
	if err != nil {
		h.writeEventError(w, err)
		return
	}
	if se.TenantID != r.PathValue("tenant") {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	sends, err := h.emitter.ListSendsByEvent(r.Context(), evtID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sends)
}

func (h *Handler) writeEventError(w http.ResponseWriter, err error) {
	if errors.Is(err, emitter.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
