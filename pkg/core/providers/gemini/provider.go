// Package gemini implements the Gemini chat provider over the official
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/englify-app/englify/pkg/core"
)

// DefaultChatModel is used when the caller does not pick one.
const DefaultChatModel = "gemini-2.0-flash"

// Provider implements core.ChatProvider against the Gemini API.
type Provider struct {
	apiKey string
	model  string
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// New creates a new Gemini provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey: apiKey,
		model:  DefaultChatModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// StreamChat starts a streaming generation and adapts the SDK's push
// iterator to the pull-based core.ChatStream contract.
func (p *Provider) StreamChat(ctx context.Context, req *core.ChatRequest) (core.ChatStream, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewProviderError("gemini", err)
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	next, stop := iter.Pull2(client.Models.GenerateContentStream(ctx, p.model, contents, config))
	return &chatStream{next: next, stop: stop}, nil
}

// chatStream adapts the genai streaming iterator to core.ChatStream.
type chatStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	err  error
}

// Next returns the next content delta; io.EOF once the generation finishes.
func (s *chatStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for {
		resp, err, ok := s.next()
		if !ok {
			s.err = io.EOF
			return "", io.EOF
		}
		if err != nil {
			s.err = core.NewProviderError("gemini", fmt.Errorf("stream: %w", err))
			return "", s.err
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

// Close stops the underlying iterator.
func (s *chatStream) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}
