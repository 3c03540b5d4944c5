package core

import (
	"context"
	"io"
)

// ChatTurn is one prior turn of conversation history sent to a provider.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest asks a provider for one assistant reply.
type ChatRequest struct {
	System      string
	History     []ChatTurn
	Message     string
	Temperature float64
	MaxTokens   int
}

// ChatStream yields incremental text deltas from a provider. Next returns
// io.EOF when the reply is complete.
type ChatStream interface {
	Next() (string, error)
	Close() error
}

// ChatProvider streams assistant replies from a remote model endpoint.
type ChatProvider interface {
	StreamChat(ctx context.Context, req *ChatRequest) (ChatStream, error)
}

// Transcriber converts captured audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
}

// SpeechRequest asks a provider to synthesize spoken audio.
type SpeechRequest struct {
	Text  string
	Voice string
	Speed float64
}

// Synthesizer converts text into spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *SpeechRequest) (io.ReadCloser, string, error)
}

// RealtimeCredential is an ephemeral secret authorizing one realtime session.
type RealtimeCredential struct {
	Secret    string
	ExpiresAt int64
	Raw       []byte
}

// RealtimeAuthorizer mints ephemeral realtime credentials and relays session
// description offers to the remote realtime endpoint.
type RealtimeAuthorizer interface {
	MintRealtimeCredential(ctx context.Context, model, voice string) (*RealtimeCredential, error)
	NegotiateRealtime(ctx context.Context, model, bearer, offer string) (string, error)
}
