package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/store"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
	Store  store.Store
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Backend  string   `json:"chat_backend"`
		Database bool     `json:"database"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.ChatBackend {
	case config.ChatBackendOpenAI, config.ChatBackendGemini:
	default:
		issues = append(issues, "invalid chat backend")
	}
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key not configured")
	}
	if h.Config.MaxBodyBytes <= 0 || h.Config.MaxAudioBytes <= 0 {
		issues = append(issues, "body budgets must be > 0")
	}
	if h.Config.SessionTTL <= 0 {
		issues = append(issues, "session ttl must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	database := h.Config.DatabaseURL != ""
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			issues = append(issues, "database unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		Backend:  string(h.Config.ChatBackend),
		Database: database,
		Issues:   issues,
	})
}
