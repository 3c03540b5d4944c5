// Package englify provides the Go client for the Englify gateway: chat
// streaming with conversation reconciliation, conversation management, and
// the realtime voice session.
package englify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/englify-app/englify/pkg/core"
)

const defaultRequestTimeout = 2 * time.Minute

// Client is the main entry point for the SDK.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the session bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// User identifies an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResponse is the result of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a session token and binds it to the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one persisted message of a conversation.
type Message struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	AudioOrigin bool      `json:"audioOrigin,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ConversationDetail is a conversation with its messages, oldest first.
type ConversationDetail struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// ListConversations returns the caller's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches one conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var out ConversationDetail
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameConversation updates a conversation title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	return c.doJSON(ctx, http.MethodPatch, "/api/conversations/"+id, map[string]string{"title": title}, nil)
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// chatRequest is the /api/chat request body.
type chatRequest struct {
	Message        string          `json:"message"`
	ConversationID string          `json:"conversationId,omitempty"`
	ChatHistory    []core.ChatTurn `json:"chatHistory,omitempty"`
	AudioOrigin    bool            `json:"audioOrigin,omitempty"`
}

// openChatStream posts a chat message and returns the raw streaming body.
// A non-2xx status is a total failure before streaming began.
func (c *Client) openChatStream(ctx context.Context, req chatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	endpoint := c.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeErrorEnvelope(resp)
	}
	return resp.Body, nil
}

// RealtimeCredential fetches an ephemeral realtime secret from the gateway.
// A payload missing the nested secret value is a hard error.
func (c *Client) RealtimeCredential(ctx context.Context, model, voice string) (string, error) {
	var out struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/realtime/session", map[string]string{
		"model": model,
		"voice": voice,
	}, &out)
	if err != nil {
		return "", core.NewCredentialError(err.Error())
	}
	if out.ClientSecret.Value == "" {
		return "", core.NewCredentialError("credential payload missing client secret")
	}
	return out.ClientSecret.Value, nil
}

// NegotiateRealtime relays a session description offer through the gateway
// and returns the opaque answer text.
func (c *Client) NegotiateRealtime(ctx context.Context, model, bearer, offer string) (string, error) {
	endpoint := c.baseURL + "/api/realtime/negotiate?model=" + model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/sdp")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", core.NewNegotiationError(err.Error())
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NewNegotiationError(err.Error())
	}
	if resp.StatusCode >= 400 {
		return "", core.NewNegotiationError(fmt.Sprintf("negotiation rejected: %d", resp.StatusCode))
	}
	return string(answer), nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeErrorEnvelope(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewAPIError(fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// decodeErrorEnvelope converts a non-2xx gateway response to a core.Error.
func decodeErrorEnvelope(resp *http.Response) error {
	var envelope struct {
		Error *core.Error `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
		return envelope.Error
	}
	return core.NewAPIError(fmt.Sprintf("gateway returned status %d", resp.StatusCode))
}
