// Package server is the composition root: it opens the database, builds
// the services, the hub and the relay, wires handlers to routes, and runs
// everything until the context is cancelled.
//
//	config → sqlite.DB → AccountService / HistoryService
//	                  → chat.Hub + chat.Relay
//	                  → handlers → chi router → http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/avatar"
	"github.com/sakif/roomchat/internal/chat"
	"github.com/sakif/roomchat/internal/config"
	"github.com/sakif/roomchat/internal/handler"
	"github.com/sakif/roomchat/internal/middleware"
	sqliteRepo "github.com/sakif/roomchat/internal/repository/sqlite"
	"github.com/sakif/roomchat/internal/service"
	"github.com/sakif/roomchat/web"
)

// shutdownTimeout is how long in-flight HTTP requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server owns the database, the hub, the relay and the router.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	db      *sqliteRepo.DB
	avatars avatar.Store
	hub     *chat.Hub
	relay   *chat.Relay
}

// New creates a Server from cfg. The database is opened and migrated here;
// nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	avatars, err := avatar.New(ctx, avatar.Config{
		Backend: cfg.AvatarBackend,
		Dir:     cfg.AvatarDir,
		S3: avatar.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating avatar store: %w", err)
	}

	scope, err := chat.ParseScope(cfg.BroadcastScope)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		avatars: avatars,
	}

	history := service.NewHistoryService(db, cfg.DefaultRooms, logger)
	s.hub = chat.NewHub(scope, logger)
	s.relay = chat.NewRelay(history, s.hub, chat.RelayConfig{
		Workers:    cfg.PersistWorkers,
		QueueSize:  cfg.PersistQueue,
		BindSender: cfg.BindSender,
	}, logger)

	if err := s.setupRoutes(history); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
//	GET  /                  entry page          (optional session)
//	POST /                  register / log in   (optional session)
//	GET  /ws                WebSocket upgrade   (optional session)
//	GET  /chats             room list           (session required)
//	GET  /chat/{chat_name}  room page           (session required)
//	GET  /profile           profile             (session required)
//	POST /profile           profile update      (session required)
//	GET  /logout            log out
//	GET  /healthz           liveness
//	GET  /static/*          embedded assets
//	GET  /avatars/*         uploaded avatars    (local backend only)
func (s *Server) setupRoutes(history *service.HistoryService) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.SessionSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	sessions := auth.NewSessionManager(tokens, s.config.CookieSecure)

	pages, err := handler.NewRenderer(web.Templates(), s.logger)
	if err != nil {
		return err
	}

	accounts := service.NewAccountService(s.db, auth.NewPasswordService(), s.logger)

	authHandler := handler.NewAuthHandler(accounts, sessions, pages, s.logger)
	chatHandler := handler.NewChatHandler(history, pages, s.logger)
	profileHandler := handler.NewProfileHandler(accounts, sessions, s.avatars, pages, s.config.MaxAvatarBytes, s.logger)
	wsHandler := handler.NewWSHandler(s.hub, s.relay, handler.WSConfig{
		AllowedOrigins:  s.config.AllowedOrigins,
		BindSender:      s.config.BindSender,
		MaxMessageBytes: s.config.MaxMessageBytes,
		RateBurst:       s.config.RateBurst,
		RateInterval:    s.config.RateInterval,
	}, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.hub, s.logger)

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	if local, ok := s.avatars.(*avatar.LocalStore); ok {
		s.router.Handle(avatar.LocalPrefix+"*", http.StripPrefix(avatar.LocalPrefix, local.Handler()))
	}

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Get("/logout", authHandler.HandleLogout)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalSession(sessions))
		r.Get("/", authHandler.HandleIndex)
		r.Post("/", authHandler.HandleIndexPost)
		r.Get("/ws", wsHandler.HandleWS)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(sessions))
		r.Get("/chats", chatHandler.HandleChats)
		r.Get("/chat/{chat_name}", chatHandler.HandleChatRoom)
		r.Get("/profile", profileHandler.HandleProfile)
		r.Post("/profile", profileHandler.HandleProfileUpdate)
	})

	return nil
}

// runChat starts the hub and the relay. The returned stop function drains
// the relay first (so queued messages are still broadcast), then closes the
// hub and every client connection.
func (s *Server) runChat(g *errgroup.Group) (stop func()) {
	hubCtx, stopHub := context.WithCancel(context.Background())
	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})

	g.Go(func() error {
		return s.hub.Run(hubCtx)
	})
	g.Go(func() error {
		defer close(relayDone)
		return s.relay.Run(relayCtx)
	})

	return func() {
		stopRelay()
		<-relayDone
		stopHub()
	}
}

// Start serves HTTP until ctx is cancelled (SIGINT/SIGTERM in main) or the
// listener fails, then shuts down in order: HTTP server, relay drain, hub,
// database.
func (s *Server) Start(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	stopChat := s.runChat(g)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.DBPath),
			slog.String("scope", string(s.hub.Scope())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		stopChat()
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
