package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/teamsync-io/teamsync/internal/chat"
	"github.com/teamsync-io/teamsync/internal/config"
	"github.com/teamsync-io/teamsync/internal/server"
	"github.com/teamsync-io/teamsync/internal/store"
)

type App struct {
	log            *log.Logger
	db             store.Repository
	svc            *chat.Service
	presence       *chat.PresenceTracker
	router         *server.RoomRouter
	httpServer     *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewApp(logger *log.Logger, mux *http.ServeMux, cfg *config.Config, db store.Repository,
	svc *chat.Service, presence *chat.PresenceTracker, router *server.RoomRouter) *App {
	s := &App{
		log:            logger,
		db:             db,
		svc:            svc,
		presence:       presence,
		router:         router,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("POST /api/chats", s.authMiddleware(s.createChat))
	mux.HandleFunc("GET /api/chats", s.authMiddleware(s.listChats))
	mux.HandleFunc("GET /api/chats/{id}", s.authMiddleware(s.getChat))
	mux.HandleFunc("PUT /api/chats/{id}", s.authMiddleware(s.updateChat))
	mux.HandleFunc("DELETE /api/chats/{id}", s.authMiddleware(s.deleteChat))
	mux.HandleFunc("POST /api/chats/{id}/members", s.authMiddleware(s.addMembers))
	mux.HandleFunc("DELETE /api/chats/{id}/members/{userId}", s.authMiddleware(s.removeMember))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.authMiddleware(s.listMessages))
	mux.HandleFunc("POST /api/chats/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("PUT /api/chats/{id}/messages/{messageId}", s.authMiddleware(s.updateMessage))
	mux.HandleFunc("DELETE /api/chats/{id}/messages/{messageId}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/chats/{id}/read", s.authMiddleware(s.markMessagesRead))
	mux.HandleFunc("GET /api/search", s.authMiddleware(s.search))
	mux.HandleFunc("GET /api/users/{id}/presence", s.authMiddleware(s.getPresence))

	mux.HandleFunc("GET /api/healthz", s.healthCheck)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.httpServer = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
