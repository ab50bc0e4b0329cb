package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"messengerService/pkg/api"
)

type Settings struct {
	Addr          string
	WSAuthTimeout time.Duration
	ShutdownGrace time.Duration
}

type Server struct {
	router       *chi.Mux
	userService  api.UserService
	chatService  api.ChatService
	authProvider api.AuthProvider
	images       api.ImageHost
	metrics      *metrics
	settings     Settings
	logger       *zap.SugaredLogger
}

func NewServer(router *chi.Mux, userService api.UserService, chatService api.ChatService, authProvider api.AuthProvider, images api.ImageHost, settings Settings, logger *zap.SugaredLogger) *Server {
	if settings.WSAuthTimeout == 0 {
		settings.WSAuthTimeout = 30 * time.Second
	}
	if settings.ShutdownGrace == 0 {
		settings.ShutdownGrace = 30 * time.Second
	}
	m := newMetrics(prometheus.NewRegistry())
	return &Server{
		router:       router,
		userService:  userService,
		chatService:  instrument(chatService, m),
		authProvider: authProvider,
		images:       images,
		metrics:      m,
		settings:     settings,
		logger:       logger,
	}
}

func (s *Server) Run() error {
	hub := api.NewHub(s.logger)
	go hub.Run()

	// run function that initializes the routes
	r := s.Routes(hub)

	server := &http.Server{Addr: s.settings.Addr, Handler: r}

	// Server run context
	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	// Listen for syscall signals for process to interrupt/quit
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		// Shutdown signal with grace period
		shutdownCtx, cancelFunc := context.WithTimeout(serverCtx, s.settings.ShutdownGrace)

		// Cancels shutdownCtx if shutdown occurs before timeout
		defer cancelFunc()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				s.logger.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		// Trigger graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Fatal(err)
		}
		serverStopCtx()
	}()

	s.logger.Infof("Listening on %s", s.settings.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()
	return nil
}
