package app

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"messengerService/pkg/api"
	myMiddleware "messengerService/pkg/middleware"
)

func (s *Server) Routes(hub *api.Hub) *chi.Mux {
	r := s.router
	r.Use(cors.Handler(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/accounts", s.Register())
	r.Get("/metrics", s.Metrics())

	r.Group(func(r chi.Router) {
		r.Use(myMiddleware.Authenticator(s.authProvider))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.FindUserByEmail())
			r.Get("/contacts", s.GetContacts())
			r.Get("/me", s.GetProfile())
			r.Patch("/me", s.UpdateProfile())
			r.Delete("/me", s.DeleteAccount(hub))
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/conversation", s.CreateConversation())
			r.Get("/conversation/{conversationId}", s.GetConversation())
			r.Post("/conversation/{conversationId}/messages", s.SendMessage())
		})

		r.Post("/media", s.UploadImage())
	})

	r.Get("/chat/ws", s.ServeWs(hub))

	return r
}
