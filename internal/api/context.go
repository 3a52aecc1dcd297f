package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/caseload/internal/validation"
)

// idContextKey is the context key for a validated URL identifier.
type idContextKey struct {
	param string
}

// WithID returns a new context carrying id under the URL param name.
func WithID(ctx context.Context, param, id string) context.Context {
	return context.WithValue(ctx, idContextKey{param: param}, id)
}

// IDFromContext returns the identifier stored for param, or "" if absent.
func IDFromContext(ctx context.Context, param string) string {
	id, _ := ctx.Value(idContextKey{param: param}).(string)
	return id
}

// RequireID validates that the URL param is a record ID and stores it in the
// request context. Malformed identifiers are rejected with 400 before any
// store access.
func RequireID(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, param)
			if verr := validation.ValidateID(param, id); verr != nil {
				WriteProblem(w, r, http.StatusBadRequest, verr.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), param, id)))
		})
	}
}
