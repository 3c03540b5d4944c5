package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ChatBackend selects which provider serves /api/chat.
type ChatBackend string

const (
	ChatBackendOpenAI ChatBackend = "openai"
	ChatBackendGemini ChatBackend = "gemini"
)

type Config struct {
	Addr string

	// DatabaseURL selects the Postgres store. Empty means the in-memory
	// store, which is only suitable for development.
	DatabaseURL string

	// Provider credentials. The OpenAI key is always required because the
	// realtime, transcription, and speech endpoints have no other backend.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string

	ChatBackend ChatBackend
	ChatModel   string

	RealtimeModel string
	RealtimeVoice string

	// SystemPrompt frames every chat completion.
	SystemPrompt string

	// WorkOS identity provider. Empty keys select the built-in dev identity.
	WorkOSAPIKey   string
	WorkOSClientID string

	// SessionTTL bounds issued session tokens.
	SessionTTL time.Duration

	MaxBodyBytes  int64
	MaxAudioBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// In-memory limits (per principal).
	LimitRPS   float64
	LimitBurst int

	// LimitMaxConcurrentStreams caps chat completions streaming at once
	// across all principals. Zero disables the cap.
	LimitMaxConcurrentStreams int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

const defaultSystemPrompt = "You are a friendly English tutor. Keep replies short, " +
	"correct the student's mistakes gently, and always answer in English."

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("ENGLIFY_ADDR", ":8080"),
		DatabaseURL:                   strings.TrimSpace(os.Getenv("ENGLIFY_DATABASE_URL")),
		OpenAIAPIKey:                  strings.TrimSpace(os.Getenv("ENGLIFY_OPENAI_API_KEY")),
		OpenAIBaseURL:                 envOr("ENGLIFY_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:                  strings.TrimSpace(os.Getenv("ENGLIFY_GEMINI_API_KEY")),
		ChatBackend:                   ChatBackend(envOr("ENGLIFY_CHAT_BACKEND", string(ChatBackendOpenAI))),
		ChatModel:                     envOr("ENGLIFY_CHAT_MODEL", "gpt-4"),
		RealtimeModel:                 envOr("ENGLIFY_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		RealtimeVoice:                 envOr("ENGLIFY_REALTIME_VOICE", "verse"),
		SystemPrompt:                  envOr("ENGLIFY_SYSTEM_PROMPT", defaultSystemPrompt),
		WorkOSAPIKey:                  strings.TrimSpace(os.Getenv("ENGLIFY_WORKOS_API_KEY")),
		WorkOSClientID:                strings.TrimSpace(os.Getenv("ENGLIFY_WORKOS_CLIENT_ID")),
		SessionTTL:                    envDurationOr("ENGLIFY_SESSION_TTL", 24*time.Hour),
		MaxBodyBytes:                  envInt64Or("ENGLIFY_MAX_BODY_BYTES", 1<<20),   // 1 MiB
		MaxAudioBytes:                 envInt64Or("ENGLIFY_MAX_AUDIO_BYTES", 25<<20), // 25 MiB
		CORSAllowedOrigins:            make(map[string]struct{}),
		LimitRPS:                      envFloat64Or("ENGLIFY_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                    envIntOr("ENGLIFY_RATE_LIMIT_BURST", 4),
		LimitMaxConcurrentStreams:     envIntOr("ENGLIFY_MAX_CONCURRENT_STREAMS", 32),
		ReadHeaderTimeout:             envDurationOr("ENGLIFY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("ENGLIFY_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:                envDurationOr("ENGLIFY_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:           envDurationOr("ENGLIFY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("ENGLIFY_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("ENGLIFY_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("ENGLIFY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("ENGLIFY_OPENAI_API_KEY must be set")
	}

	switch cfg.ChatBackend {
	case ChatBackendOpenAI:
	case ChatBackendGemini:
		if cfg.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("ENGLIFY_GEMINI_API_KEY must be set when ENGLIFY_CHAT_BACKEND=gemini")
		}
	default:
		return Config{}, fmt.Errorf("ENGLIFY_CHAT_BACKEND must be one of openai|gemini")
	}

	if (cfg.WorkOSAPIKey == "") != (cfg.WorkOSClientID == "") {
		return Config{}, fmt.Errorf("ENGLIFY_WORKOS_API_KEY and ENGLIFY_WORKOS_CLIENT_ID must be set together")
	}

	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_SESSION_TTL must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_MAX_AUDIO_BYTES must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("ENGLIFY_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("ENGLIFY_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentStreams < 0 {
		return Config{}, fmt.Errorf("ENGLIFY_MAX_CONCURRENT_STREAMS must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("ENGLIFY_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
