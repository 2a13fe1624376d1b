// Package api is the HTTP surface: chi router, bearer middleware and the
// JSON envelope shared by every endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"disputeflow/auth"
)

// NewRouter wires middleware and the full route table. Only /login and
// /reset-password are reachable without a bearer token.
func NewRouter(tokens *auth.TokenService, users *AuthHandler, disputes *DisputeHandler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Post("/login", users.Login)
	r.Post("/reset-password", users.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(tokens, logger))

		r.Post("/register", users.Register)
		r.Delete("/delete/user/{id}", users.DeleteUser)
		r.Post("/update/user", users.UpdateUser)
		r.Get("/users", users.ListUsers)
		r.Get("/users/{id}", users.GetUser)

		r.Get("/disputes/categories", disputes.Catalog)
		r.Post("/dispute", disputes.Create)
		r.Get("/disputes", disputes.List)
		r.Get("/disputes/{id}", disputes.Get)
		r.Get("/disputes/view/{id}", disputes.GetForView)
		r.Delete("/delete/dispute", disputes.Delete)
		r.Post("/dispute/update", disputes.Update)
		r.Post("/dispute/reply", disputes.Reply)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, http.StatusNotFound, "Route not found")
	})

	return r
}
