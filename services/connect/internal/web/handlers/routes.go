package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Mount registers the API on r. Middleware such as request IDs and
// timeouts is the caller's.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/firebase", h.FirebaseLogin)
		r.Post("/auth/password-reset", h.PasswordReset)
		r.Post("/auth/password-reset/confirm", h.PasswordResetConfirm)
		r.Get("/auth/verify", h.VerifyEmail)
		r.Get("/items", h.ListItems)
		r.Get("/items/{id}", h.GetItem)

		r.With(h.OptionalAuth).Get("/actions", h.SearchActions)

		// Signed in
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/session", h.Session)

			r.Post("/items", h.CreateItem)
			r.Delete("/items/{id}", h.DeleteItem)
			r.Post("/items/{id}/requests", h.CreateRequest)

			r.Get("/me/items", h.MyItems)
			r.Get("/me/requests/received", h.ReceivedRequests)
			r.Get("/me/requests/sent", h.SentRequests)
			r.Patch("/me/contact", h.UpdateContact)
			r.Delete("/me", h.DeleteAccount)

			r.Post("/requests/{id}/approve", h.ApproveRequest)
			r.Post("/requests/{id}/reject", h.RejectRequest)

			r.Group(func(r chi.Router) {
				r.Use(AdminMiddleware)
				r.Get("/admin/items", h.AdminItems)
			})
		})
	})
}
