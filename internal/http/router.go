package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/quillpost/server/internal/auth"
	"github.com/quillpost/server/internal/http/handlers"
	"github.com/quillpost/server/internal/middleware"
	"github.com/quillpost/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(userHandler *handlers.UserHandler, issuer *auth.TokenIssuer, users repo.UserRepo) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	// Request logging covers method, path and status only; bodies (and with
	// them passwords, codes and tokens) are never logged.
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/", handlers.HandleWelcome)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", userHandler.HandleCreate)
		r.Post("/login", userHandler.HandleLogin)
		r.Post("/verify", userHandler.HandleVerify)
		r.Post("/token/refresh", userHandler.HandleRefresh)

		// Protected routes (require valid access token)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(issuer, users))
			r.Get("/me", userHandler.HandleMe)
			r.Get("/details", userHandler.HandleDetails)
			r.Patch("/profile/update", userHandler.HandleProfileUpdate)
			r.Patch("/photo", userHandler.HandlePhotoUpdate)
		})
	})

	return r
}
