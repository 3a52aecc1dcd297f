package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperengineering/caseload/internal/store"
	"github.com/hyperengineering/caseload/internal/types"
	"github.com/hyperengineering/caseload/internal/validation"
)

// Handler implements the API handlers
type Handler struct {
	store   store.Store
	apiKey  string
	version string
}

// NewHandler creates a new Handler with store.Store interface
func NewHandler(s store.Store, apiKey, version string) *Handler {
	return &Handler{
		store:   s,
		apiKey:  apiKey,
		version: version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON decodes the request body into v, writing a problem response and
// returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health check failed", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		ClientCount:  stats.ClientCount,
		LastSnapshot: stats.LastSnapshot,
	})
}

// ListClients handles GET /api/v1/clients
//
// Query parameters: status (repeatable or comma separated, "all" for none),
// search, page, page_size.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	filter, errs := parseListFilter(r)
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	list, err := h.store.ListClients(r.Context(), filter)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func parseListFilter(r *http.Request) (types.ListFilter, []validation.ValidationError) {
	q := r.URL.Query()
	c := validation.NewCollector("")
	filter := types.ListFilter{Search: q.Get("search")}

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" || s == "all" {
				continue
			}
			status := types.ClientStatus(s)
			if verr := validation.ValidateStatus("status", status); verr != nil {
				c.Add(verr)
				continue
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	filter.Page = parseIntParam(c, q.Get("page"), "page")
	filter.PageSize = parseIntParam(c, q.Get("page_size"), "page_size")
	c.Add(validation.ValidateText("search", filter.Search, 200))

	return filter, c.Errors()
}

func parseIntParam(c *validation.Collector, raw, field string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.Add(&validation.ValidationError{Field: field, Message: "must be a positive integer"})
		return 0
	}
	return n
}

// CreateClient handles POST /api/v1/clients
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var fields types.ClientFields
	if !decodeJSON(w, r, &fields) {
		return
	}
	if errs := validation.ValidateClientFields(fields); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	client, err := h.store.CreateClient(r.Context(), fields)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("client created", "client_id", client.ID, "status", client.Status)
	writeJSON(w, http.StatusCreated, types.CreatedResponse{ID: client.ID})
}

// GetClient handles GET /api/v1/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	detail, err := h.store.GetClient(r.Context(), IDFromContext(r.Context(), "id"))
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateClient handles PUT /api/v1/clients/{id}
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var fields types.ClientFields
	if !decodeJSON(w, r, &fields) {
		return
	}
	if errs := validation.ValidateClientFields(fields); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	if err := h.store.UpdateClient(r.Context(), IDFromContext(r.Context(), "id"), fields); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteClient handles DELETE /api/v1/clients/{id}
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := IDFromContext(r.Context(), "id")
	if err := h.store.DeleteClient(r.Context(), id); err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("client deleted", "client_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateClientStatus handles PATCH /api/v1/clients/{id}/status
func (h *Handler) UpdateClientStatus(w http.ResponseWriter, r *http.Request) {
	var req types.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if verr := validation.ValidateStatus("status", req.Status); verr != nil {
		WriteProblemWithErrors(w, r, []validation.ValidationError{*verr})
		return
	}

	if err := h.store.UpdateClientStatus(r.Context(), IDFromContext(r.Context(), "id"), req.Status); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateComposite handles POST /api/v1/clients/composite. The client and all
// of its child rows are written in one transaction.
func (h *Handler) CreateComposite(w http.ResponseWriter, r *http.Request) {
	h.saveComposite(w, r, "", http.StatusCreated)
}

// UpdateComposite handles PUT /api/v1/clients/{id}/composite
func (h *Handler) UpdateComposite(w http.ResponseWriter, r *http.Request) {
	h.saveComposite(w, r, IDFromContext(r.Context(), "id"), http.StatusOK)
}

func (h *Handler) saveComposite(w http.ResponseWriter, r *http.Request, clientID string, status int) {
	var form types.Composite
	if !decodeJSON(w, r, &form) {
		return
	}
	if errs := validation.ValidateComposite(form); len(errs) > 0 {
		WriteProblemWithErrors(w, r, errs)
		return
	}

	id, err := h.store.SaveComposite(r.Context(), clientID, form)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("composite saved",
		"client_id", id,
		"guardians", len(form.Guardians),
		"locations", len(form.Locations),
		"insurances", len(form.Insurances),
	)
	writeJSON(w, status, types.CreatedResponse{ID: id})
}
