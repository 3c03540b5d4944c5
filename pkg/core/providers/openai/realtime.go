package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/englify-app/englify/pkg/core"
)

const (
	// DefaultRealtimeModel is the realtime inference model minted by default.
	DefaultRealtimeModel = "gpt-4o-realtime-preview-2024-12-17"

	// DefaultRealtimeVoice is the voice used when the caller does not pick one.
	DefaultRealtimeVoice = "verse"
)

// realtimeSession is the relevant slice of the realtime session response.
// The ephemeral secret arrives nested under client_secret.
type realtimeSession struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// MintRealtimeCredential creates an ephemeral realtime session credential.
// A payload missing the nested secret value is a hard error.
func (p *Provider) MintRealtimeCredential(ctx context.Context, model, voice string) (*core.RealtimeCredential, error) {
	if model == "" {
		model = DefaultRealtimeModel
	}
	if voice == "" {
		voice = DefaultRealtimeVoice
	}

	payload, err := json.Marshal(map[string]string{
		"model": model,
		"voice": voice,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/realtime/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq, "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewCredentialError(fmt.Sprintf("realtime session request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewCredentialError(fmt.Sprintf("read realtime session response: %v", err))
	}
	if resp.StatusCode >= 400 {
		return nil, core.NewCredentialError(fmt.Sprintf("realtime session endpoint returned %d", resp.StatusCode))
	}

	var session realtimeSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, core.NewCredentialError("malformed realtime session payload")
	}
	if session.ClientSecret.Value == "" {
		return nil, core.NewCredentialError("realtime session payload missing client secret")
	}

	return &core.RealtimeCredential{
		Secret:    session.ClientSecret.Value,
		ExpiresAt: session.ClientSecret.ExpiresAt,
		Raw:       body,
	}, nil
}

// NegotiateRealtime relays an opaque session description offer to the
// realtime endpoint and returns the answer text.
func (p *Provider) NegotiateRealtime(ctx context.Context, model, bearer, offer string) (string, error) {
	if model == "" {
		model = DefaultRealtimeModel
	}

	endpoint := p.baseURL + "/realtime?model=" + url.QueryEscape(model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/sdp")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", core.NewNegotiationError(fmt.Sprintf("realtime negotiation failed: %v", err))
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NewNegotiationError(fmt.Sprintf("read negotiation answer: %v", err))
	}
	if resp.StatusCode >= 400 {
		return "", core.NewNegotiationError(fmt.Sprintf("realtime endpoint rejected offer: %d - %s", resp.StatusCode, strings.TrimSpace(string(answer))))
	}
	return string(answer), nil
}
