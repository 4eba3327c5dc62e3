package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups every endpoint handler served by the API.
type Handlers struct {
	Auth     *AuthHandler
	Listings *ListingHandler
	Messages *MessageHandler
	Images   *ImageHandler
}

// Routes registers every route on r. jwtSecret signs and verifies sessions.
func Routes(r chi.Router, h Handlers, jwtSecret string) {
	r.Get("/healthz", Healthz)
	if h.Images != nil {
		r.Get("/images/*", h.Images.Serve)
	}

	r.Group(func(r chi.Router) {
		r.Use(ResolveActor(jwtSecret))

		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, h.Auth)
		})
		r.With(RequireAuth).Get("/my-listings", h.Listings.OwnedListings)
		r.Route("/listings", func(r chi.Router) {
			ListingRouter(r, h.Listings, h.Messages)
		})
		r.Get("/api/listings", h.Listings.PublishedListings)
	})
}
