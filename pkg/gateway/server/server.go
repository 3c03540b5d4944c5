// Package server wires the gateway's routes, middleware, providers, and
// storage into one http.Handler.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/englify-app/englify/pkg/core"
	"github.com/englify-app/englify/pkg/core/providers/gemini"
	"github.com/englify-app/englify/pkg/core/providers/openai"
	"github.com/englify-app/englify/pkg/gateway/auth"
	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/handlers"
	"github.com/englify-app/englify/pkg/gateway/metrics"
	"github.com/englify-app/englify/pkg/gateway/mw"
	"github.com/englify-app/englify/pkg/gateway/ratelimit"
	"github.com/englify-app/englify/pkg/gateway/store"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	st       store.Store
	sessions *auth.Sessions
	identity auth.Identity
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter

	chat   core.ChatProvider
	openai *openai.Provider
}

// New builds the gateway: store selection, identity provider, chat backend,
// and route wiring. The returned server owns the store and must be closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st = pg
	} else {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemory()
	}

	var identity auth.Identity
	if cfg.WorkOSAPIKey != "" {
		identity = auth.NewWorkOSIdentity(cfg.WorkOSAPIKey, cfg.WorkOSClientID)
	} else {
		logger.Warn("no identity provider configured, using dev identity")
		identity = auth.DevIdentity{}
	}

	oai := openai.New(cfg.OpenAIAPIKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithModel(cfg.ChatModel),
		openai.WithHTTPClient(httpClient),
	)

	var chat core.ChatProvider = oai
	if cfg.ChatBackend == config.ChatBackendGemini {
		chat = gemini.New(cfg.GeminiAPIKey, gemini.WithModel(cfg.ChatModel))
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		st:       st,
		sessions: auth.NewSessions(cfg.SessionTTL),
		identity: identity,
		metrics:  metrics.New(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:   cfg.LimitRPS,
			Burst: cfg.LimitBurst,
		}),
		chat:   chat,
		openai: oai,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Store: s.st})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/api/auth/login", handlers.LoginHandler{
		Config:   s.cfg,
		Identity: s.identity,
		Sessions: s.sessions,
		Logger:   s.logger,
	})

	s.mux.Handle("/api/conversations", handlers.ConversationsHandler{
		Store:  s.st,
		Logger: s.logger,
	})
	s.mux.Handle("/api/conversations/{id}", handlers.ConversationHandler{
		Config: s.cfg,
		Store:  s.st,
		Logger: s.logger,
	})

	var streams chan struct{}
	if s.cfg.LimitMaxConcurrentStreams > 0 {
		streams = make(chan struct{}, s.cfg.LimitMaxConcurrentStreams)
	}
	s.mux.Handle("/api/chat", handlers.ChatHandler{
		Config:  s.cfg,
		Store:   s.st,
		Chat:    s.chat,
		Metrics: s.metrics,
		Logger:  s.logger,
		Streams: streams,
	})

	s.mux.Handle("/api/realtime/session", handlers.RealtimeSessionHandler{
		Config:     s.cfg,
		Authorizer: s.openai,
		Metrics:    s.metrics,
		Logger:     s.logger,
	})
	s.mux.Handle("/api/realtime/negotiate", handlers.RealtimeNegotiateHandler{
		Config:     s.cfg,
		Authorizer: s.openai,
		Logger:     s.logger,
	})

	s.mux.Handle("/api/transcribe", handlers.TranscribeHandler{
		Config:      s.cfg,
		Transcriber: s.openai,
		Metrics:     s.metrics,
		Logger:      s.logger,
	})
	s.mux.Handle("/api/speech", handlers.SpeechHandler{
		Config:      s.cfg,
		Synthesizer: s.openai,
		Logger:      s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.sessions, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, s.metrics, h)
	h = mw.RequestID(h)
	return h
}

// Close releases the store.
func (s *Server) Close() {
	s.st.Close()
}
