// internal/app/features/mpesa/routes.go
package mpesa

import "github.com/go-chi/chi/v5"

// Routes returns the router for provider callbacks, mounted under /mpesa.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/callback", h.ServeCallback)
	return r
}
