package web

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mtzanidakis/council/internal/chat"
	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/natsbus"
	"github.com/mtzanidakis/council/internal/store"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	store     *store.Store
	chat      *chat.Service
	bus       *natsbus.Bus
	nats      *natsbus.Client
	hub       *Hub
	cfg       config.WebConfig
	version   string
	startedAt time.Time
}

// NewServer wires the HTTP API. bus may be nil, in which case the websocket feed
// stays silent.
func NewServer(s *store.Store, svc *chat.Service, bus *natsbus.Bus, cfg config.WebConfig, version string) *Server {
	return &Server{
		store:     s,
		chat:      svc,
		bus:       bus,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handler returns the routed API with CORS and auth applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.registerAPI(mux)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", s.getStatus)

	return s.withMiddleware(mux)
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	if err := s.subscribeEvents(); err != nil {
		return err
	}
	defer func() {
		if s.nats != nil {
			s.nats.Close()
		}
	}()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && s.cfg.Auth != "" && !s.checkAuth(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="council"`)
			jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.cfg.AllowOrigins, "*") || slices.Contains(s.cfg.AllowOrigins, origin)
}

// checkAuth validates the Basic Auth password.
func (s *Server) checkAuth(r *http.Request) bool {
	_, pass, ok := r.BasicAuth()
	return ok && subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Auth)) == 1
}

func (s *Server) subscribeEvents() error {
	if s.bus == nil {
		return nil
	}
	client, err := natsbus.NewClient(s.bus)
	if err != nil {
		return fmt.Errorf("web server nats client: %w", err)
	}
	s.nats = client

	// Forward council events to WebSocket clients of the same conversation
	if _, err := client.Subscribe(natsbus.TopicEventsCouncils, func(msg *nats.Msg) {
		s.hub.Broadcast(Event{
			ConversationID: natsbus.ConversationFromTopic(msg.Subject),
			Event:          msg.Data,
		})
	}); err != nil {
		return fmt.Errorf("subscribe council events: %w", err)
	}
	return client.Flush()
}
