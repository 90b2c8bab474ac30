package api

import (
	"errors"
	"net/http"

	emitter "github.com/hooklab/emitter"
	"github.com/hooklab/emitter/catalog"
)

// registerEventType registers or updates a custom event type definition.
// Re-registering an existing name replaces its definition and lifts any
// deprecation.
func (h *Handler) registerEventType(w http.ResponseWriter, r *http.Request) {
	var def catalog.Definition
	if err := decodeJSON(r, &def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	et, err := h.emitter.Catalog().RegisterType(r.Context(), def)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}

	w.Header().Set("Location", "/event-types/"+et.Definition.Name)
	writeJSON(w, http.StatusCreated, et)
}

func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	opts := catalog.ListOpts{
		Offset:            queryInt(r, "offset", 0),
		Limit:             queryInt(r, "limit", 50),
		Group:             queryParam(r, "group"),
		IncludeDeprecated: queryParam(r, "include_deprecated") == "true",
	}

	types, err := h.emitter.Catalog().ListTypes(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) getEventType(w http.ResponseWriter, r *http.Request) {
	et, err := h.emitter.Catalog().GetType(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, et)
}

func (h *Handler) deleteEventType(w http.ResponseWriter, r *http.Request) {
	if err := h.emitter.Catalog().DeleteType(r.Context(), r.PathValue("name")); err != nil {
		h.writeCatalogError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCatalogError(w http.ResponseWriter, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.Is(err, emitter.ErrEventTypeNotFound):
		writeError(w, http.StatusNotFound, "event type not found")
	case errors.Is(err, emitter.ErrReservedEventType):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
