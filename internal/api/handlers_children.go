package api

import (
	"log/slog"
	"net/http"

	"github.com/hyperengineering/caseload/internal/types"
	"github.com/hyperengineering/caseload/internal/validation"
)

// decodeChild decodes the request body into the record type of kind.
func decodeChild(w http.ResponseWriter, r *http.Request, kind types.ChildKind) (types.Child, bool) {
	switch kind {
	case types.KindGuardian:
		var g types.Guardian
		if !decodeJSON(w, r, &g) {
			return nil, false
		}
		return g, true
	case types.KindLocation:
		var l types.Location
		if !decodeJSON(w, r, &l) {
			return nil, false
		}
		return l, true
	case types.KindInsurance:
		var i types.Insurance
		if !decodeJSON(w, r, &i) {
			return nil, false
		}
		return i, true
	}
	WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	return nil, false
}

// CreateChild returns the handler for POST /api/v1/clients/{id}/{kind}
func (h *Handler) CreateChild(kind types.ChildKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		child, ok := decodeChild(w, r, kind)
		if !ok {
			return
		}
		if errs := validation.ValidateChild("", child); len(errs) > 0 {
			WriteProblemWithErrors(w, r, errs)
			return
		}

		clientID := IDFromContext(r.Context(), "id")
		id, err := h.store.CreateChild(r.Context(), clientID, child)
		if err != nil {
			MapStoreError(w, r, err)
			return
		}

		slog.Info("child record created", "client_id", clientID, "kind", kind, "id", id)
		writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: id})
	}
}

// UpdateChild returns the handler for PUT /api/v1/{kind}/{childID}
func (h *Handler) UpdateChild(kind types.ChildKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		child, ok := decodeChild(w, r, kind)
		if !ok {
			return
		}
		if errs := validation.ValidateChild("", child); len(errs) > 0 {
			WriteProblemWithErrors(w, r, errs)
			return
		}

		// The path identifies the record; any id in the body is ignored.
		child = types.WithChildID(child, IDFromContext(r.Context(), "childID"))
		if err := h.store.UpdateChild(r.Context(), child); err != nil {
			MapStoreError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteChild returns the handler for DELETE /api/v1/{kind}/{childID}
func (h *Handler) DeleteChild(kind types.ChildKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := IDFromContext(r.Context(), "childID")
		if err := h.store.DeleteChild(r.Context(), kind, id); err != nil {
			MapStoreError(w, r, err)
			return
		}

		slog.Info("child record deleted", "kind", kind, "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}
