// Package server exposes sessions and the shared desktop over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/auth"
	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/desktop"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/session"
)

// HeaderConversationID carries the session id of a streamed invocation.
const HeaderConversationID = "X-Conversation-Id"

const defaultHeartbeat = 15 * time.Second

// Desktop is the machine the server drives directly.
type Desktop interface {
	desktop.Desktop
	Reset(ctx context.Context) error
}

// Settings are the loop parameters that can change while the server runs.
type Settings struct {
	SettleDelay      time.Duration
	DecisionTimeout  time.Duration
	CompleteMaxTurns int
	ShareDesktop     bool
	Verbose          bool
}

type Config struct {
	Registry       *session.Registry
	Loop           *runtime.Loop
	Backends       backend.Set
	Desktop        Desktop
	DefaultBackend backend.Kind
	// Auth enables bearer token checks on /api. Nil disables them.
	Auth           *auth.Manager
	AllowedOrigins []string
	TranscriptDir  string
	Settings       Settings
	// Heartbeat is the interval of SSE keep-alive comments.
	Heartbeat time.Duration
}

type Server struct {
	e        *echo.Echo
	registry *session.Registry
	loop     *runtime.Loop
	backends backend.Set
	desktop  Desktop
	executor *action.Executor

	defaultBackend backend.Kind
	transcriptDir  string
	settings       atomic.Pointer[Settings]
	upgrader       websocket.Upgrader
	heartbeat      time.Duration

	mu      sync.Mutex
	streams map[string]*runtime.Stream
}

func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil || cfg.Loop == nil || cfg.Desktop == nil {
		return nil, errors.New("registry, loop and desktop are required")
	}
	if len(cfg.Backends) == 0 {
		return nil, errors.New("at least one backend must be configured")
	}

	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}

	def := cfg.DefaultBackend
	if _, err := cfg.Backends.Get(def); err != nil {
		def = cfg.Backends.Default()
	}

	s := &Server{
		e:              echo.New(),
		registry:       cfg.Registry,
		loop:           cfg.Loop,
		backends:       cfg.Backends,
		desktop:        cfg.Desktop,
		executor:       action.NewExecutor(cfg.Desktop),
		defaultBackend: def,
		transcriptDir:  cfg.TranscriptDir,
		heartbeat:      cfg.Heartbeat,
		streams:        map[string]*runtime.Stream{},
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}
	s.SetSettings(cfg.Settings)

	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("HTTP request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.e.GET("/health", s.health)

	api := s.e.Group("/api", auth.Middleware(cfg.Auth))
	api.POST("/sessions", s.startSession)
	api.POST("/sessions/:id/step", s.stepSession)
	api.GET("/sessions/:id", s.status)
	api.GET("/sessions/:id/history", s.history)
	api.GET("/sessions/:id/ws", s.streamWebSocket)
	api.DELETE("/sessions/:id/stream", s.detach)

	api.GET("/desktop/screenshot", s.screenshot)
	api.POST("/desktop/reset", s.resetDesktop)
	api.POST("/desktop/actions", s.runAction)

	return s, nil
}

// SetSettings replaces the loop settings used by invocations started from now on.
func (s *Server) SetSettings(st Settings) {
	s.settings.Store(&st)
}

func (s *Server) Handler() http.Handler { return s.e }

// Listen opens addr. A "unix://" prefix selects a unix socket.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	if path, ok := strings.CutPrefix(addr, "unix://"); ok {
		return lc.Listen(ctx, "unix", path)
	}
	return lc.Listen(ctx, "tcp", addr)
}

// Serve handles requests on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Forcing server close", "error", err)
			_ = srv.Close()
		}
	}()

	slog.Info("Server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// gorilla's default same-origin check
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
