package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperengineering/caseload/internal/types"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(LimitBody)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.CreateClient)
				r.Post("/composite", h.CreateComposite)

				r.Route("/{id}", func(r chi.Router) {
					r.Use(RequireID("id"))
					r.Get("/", h.GetClient)
					r.Put("/", h.UpdateClient)
					r.Delete("/", h.DeleteClient)
					r.Patch("/status", h.UpdateClientStatus)
					r.Put("/composite", h.UpdateComposite)
					for _, kind := range types.ChildKinds {
						r.Post("/"+string(kind), h.CreateChild(kind))
					}
					r.Post("/authorizations", h.CreateAuthorization)
					r.Post("/tasks", h.CreateTask)
				})
			})

			r.Route("/authorizations/{authID}", func(r chi.Router) {
				r.Use(RequireID("authID"))
				r.Put("/", h.UpdateAuthorization)
				r.Delete("/", h.DeleteAuthorization)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", h.ListTasks)
				r.Post("/", h.CreateTask)

				r.Route("/{taskID}", func(r chi.Router) {
					r.Use(RequireID("taskID"))
					r.Put("/", h.UpdateTask)
					r.Delete("/", h.DeleteTask)
					r.Post("/complete", h.CompleteTask)
				})
			})

			for _, kind := range types.ChildKinds {
				r.Route("/"+string(kind)+"/{childID}", func(r chi.Router) {
					r.Use(RequireID("childID"))
					r.Put("/", h.UpdateChild(kind))
					r.Delete("/", h.DeleteChild(kind))
				})
			}
		})
	})

	return r
}
