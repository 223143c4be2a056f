package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/YudoTLE/VelonY-sub000/internal/api/auth"
	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/internal/config"
	"github.com/YudoTLE/VelonY-sub000/internal/generate"
	"github.com/YudoTLE/VelonY-sub000/internal/jobqueue"
	"github.com/YudoTLE/VelonY-sub000/internal/logging"
	"github.com/YudoTLE/VelonY-sub000/internal/realtime"
	"github.com/YudoTLE/VelonY-sub000/internal/store"
)

var log = logging.Component("api")

// Server is the HTTP surface of the platform: the message pipeline, the
// realtime transports, and the thin read endpoints clients reconcile
// against.
type Server struct {
	echo         *echo.Echo
	cfg          *config.Config
	store        *store.Store
	tokens       *auth.TokenService
	orchestrator *generate.Orchestrator
	broadcaster  realtime.Broadcaster
	socket       *realtime.SocketBroadcaster
	channel      *realtime.ChannelBroadcaster
	queue        *jobqueue.JobQueue
}

// NewServer wires the API server. queue may be nil when async agent turns
// are disabled.
func NewServer(cfg *config.Config, st *store.Store, tokens *auth.TokenService, queue *jobqueue.JobQueue) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := realtime.NewHub(cfg.Realtime.SendBuffer)

	s := &Server{
		echo:   e,
		cfg:    cfg,
		store:  st,
		tokens: tokens,
		queue:  queue,
	}

	switch cfg.Realtime.Transport {
	case config.TransportChannel:
		s.channel = realtime.NewChannelBroadcaster(hub, cfg.Realtime.GrantSecret, cfg.Realtime.AllowedOrigin)
		s.broadcaster = s.channel
	default:
		s.socket = realtime.NewSocketBroadcaster(hub, tokens, cfg.Realtime.AllowedOrigin)
		s.broadcaster = s.socket
	}

	providers := generate.NewLangchainFactory(st.Sessions)
	s.orchestrator = generate.NewOrchestrator(&storeBackend{store: st}, providers, s.broadcaster, generate.Options{
		FlushCapacity: cfg.Generation.FlushCapacity,
		HistoryLimit:  cfg.Generation.HistoryLimit,
		StreamRetries: cfg.Generation.StreamRetries,
	})

	s.setupRoutes()
	return s
}

// AttachQueue enables async agent turns. The queue is built after the
// server because its worker needs the orchestrator.
func (s *Server) AttachQueue(queue *jobqueue.JobQueue) {
	s.queue = queue
}

// Orchestrator exposes the generation pipeline for the worker process.
func (s *Server) Orchestrator() *generate.Orchestrator {
	return s.orchestrator
}

// Broadcaster exposes the active realtime transport.
func (s *Server) Broadcaster() realtime.Broadcaster {
	return s.broadcaster
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	authed := auth.Middleware(s.tokens)

	rt := s.echo.Group("/realtime")
	rt.POST("/auth", s.realtimeAuth, authed)
	if s.socket != nil {
		rt.GET("/ws", s.socket.HandleWS)
	}
	if s.channel != nil {
		rt.GET("/subscribe", s.channel.HandleSubscribe)
	}

	v1 := s.echo.Group("/api/v1", authed)
	v1.POST("/conversations/:id/messages", s.createMessage)
	v1.GET("/conversations/:id/messages", s.listMessages)
	v1.GET("/conversations/:id", s.getConversation)
	v1.DELETE("/messages/:id", s.deleteMessage)
	v1.GET("/agents/:id", s.getAgent)
	v1.GET("/models/:id", s.getModel)
}

// Start runs the server until SIGINT, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	s.broadcaster.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// realtimeAuth hands an authenticated caller a short-lived grant for its
// own channel. Only the channel transport serves grants.
func (s *Server) realtimeAuth(c echo.Context) error {
	if s.channel == nil {
		return httpError(apperr.New(apperr.KindInvalid, "channel transport is not enabled"))
	}

	identity, err := auth.IdentityFrom(c)
	if err != nil {
		return httpError(err)
	}

	channel := realtime.ChannelName(identity.UserID())
	ttl := time.Duration(s.cfg.Realtime.GrantTTLSecs) * time.Second
	grant, err := s.tokens.SignGrant(identity.UserID(), channel, ttl, []byte(s.cfg.Realtime.GrantSecret))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"channel":   channel,
		"grant":     grant,
		"expiresIn": s.cfg.Realtime.GrantTTLSecs,
	})
}

// httpError converts a tagged error into the echo error the boundary
// serves. Internal causes stay out of the response body.
func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
}
