// Package openai implements the OpenAI provider: streaming chat completions,
// Whisper transcription, speech synthesis, and realtime session authorization.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/englify-app/englify/pkg/core"
)

const (
	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultChatModel is used when the caller does not pick one.
	DefaultChatModel = "gpt-4"

	// DefaultMaxTokens bounds reply length if not specified.
	DefaultMaxTokens = 500
)

// Provider implements core.ChatProvider, core.Transcriber, core.Synthesizer
// and core.RealtimeAuthorizer against the OpenAI API.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultChatModel,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// chatRequest is the OpenAI chat completions request shape.
type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []chatTurn `json:"messages"`
	Temperature float64    `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Stream      bool       `json:"stream"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChat starts a streaming chat completion.
func (p *Provider) StreamChat(ctx context.Context, req *core.ChatRequest) (core.ChatStream, error) {
	turns := make([]chatTurn, 0, len(req.History)+2)
	if req.System != "" {
		turns = append(turns, chatTurn{Role: "system", Content: req.System})
	}
	for _, t := range req.History {
		turns = append(turns, chatTurn{Role: t.Role, Content: t.Content})
	}
	turns = append(turns, chatTurn{Role: "user", Content: req.Message})

	openaiReq := chatRequest{
		Model:       p.model,
		Messages:    turns,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
	if openaiReq.MaxTokens <= 0 {
		openaiReq.MaxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(openaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq, "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, p.parseError(resp)
	}
	return newChatStream(resp.Body), nil
}

func (p *Provider) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
}

// openaiError is the OpenAI error response envelope.
type openaiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// parseError converts a non-2xx response into a core.Error.
func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr openaiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return &core.Error{
			Type:    core.ErrProvider,
			Message: fmt.Sprintf("openai: status %d", resp.StatusCode),
		}
	}

	var errType core.ErrorType
	switch resp.StatusCode {
	case http.StatusBadRequest:
		errType = core.ErrInvalidRequest
	case http.StatusUnauthorized:
		errType = core.ErrAuthentication
	case http.StatusForbidden:
		errType = core.ErrPermission
	case http.StatusNotFound:
		errType = core.ErrNotFound
	case http.StatusTooManyRequests:
		errType = core.ErrRateLimit
	default:
		errType = core.ErrProvider
	}
	return &core.Error{
		Type:    errType,
		Message: apiErr.Error.Message,
		Code:    apiErr.Error.Code,
	}
}
