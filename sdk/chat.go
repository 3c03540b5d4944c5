package englify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/englify-app/englify/pkg/core"
)

// FailureMessage replaces the assistant reply when a stream reports an error.
const FailureMessage = "Sorry, I encountered an error processing your request. Please try again."

// ChatDelta is one decoded chat stream event.
type ChatDelta struct {
	// Content is the text carried by this event. When Replace is true it is
	// the full reply so far and supersedes anything accumulated; otherwise it
	// appends.
	Content string
	Replace bool
	// ConversationID is the server-assigned conversation id, present on
	// every event once the server has one.
	ConversationID string
	// Final marks the last content-bearing event of the reply.
	Final bool
	// Failed marks a stream-level failure; Content carries the fixed
	// failure message and no further events follow.
	Failed bool
}

// ChatStream iterates the server's chat response as it streams in.
type ChatStream struct {
	body    io.ReadCloser
	logger  *slog.Logger
	scanner frameScanner
	pending []string
	done    bool
	text    string
}

// SendMessageRequest describes one user message to send.
type SendMessageRequest struct {
	// ConversationID may be empty for a new conversation; the server's id
	// arrives on the stream events.
	ConversationID string
	Message        string
	History        []core.ChatTurn
	// AudioOrigin marks the message as produced by speech transcription.
	AudioOrigin bool
}

// SendMessage posts a user message and returns the assistant reply stream.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*ChatStream, error) {
	body, err := c.openChatStream(ctx, chatRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		ChatHistory:    req.History,
		AudioOrigin:    req.AudioOrigin,
	})
	if err != nil {
		return nil, err
	}
	return &ChatStream{body: body, logger: c.logger}, nil
}

// Next returns the next event. It returns io.EOF after the terminal frame or
// when the underlying stream ends.
func (s *ChatStream) Next() (*ChatDelta, error) {
	for {
		if s.done {
			return nil, io.EOF
		}
		frame, err := s.nextFrame()
		if err != nil {
			return nil, err
		}

		payload, ok := framePayload(frame)
		if !ok {
			continue
		}
		if payload == doneSentinel {
			s.done = true
			return nil, io.EOF
		}

		delta, err := decodeChatPayload(payload)
		if err != nil {
			// Malformed frames are skipped rather than killing the stream.
			if s.logger != nil {
				s.logger.Warn("dropping malformed chat frame", "error", err)
			}
			continue
		}
		if delta == nil {
			continue
		}
		if delta.Replace {
			s.text = delta.Content
		} else {
			s.text += delta.Content
		}
		if delta.Failed {
			s.done = true
		}
		return delta, nil
	}
}

// Text returns the reply accumulated so far.
func (s *ChatStream) Text() string { return s.text }

// Close releases the underlying connection.
func (s *ChatStream) Close() error {
	s.done = true
	return s.body.Close()
}

func (s *ChatStream) nextFrame() (string, error) {
	for len(s.pending) == 0 {
		chunk := make([]byte, 4096)
		n, err := s.body.Read(chunk)
		if n > 0 {
			s.pending = s.scanner.Feed(chunk[:n])
		}
		if err != nil {
			if len(s.pending) > 0 {
				break
			}
			if frame, ok := s.scanner.Flush(); ok {
				s.done = true
				return frame, nil
			}
			s.done = true
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
	}
	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, nil
}

// chatPayload is the wire shape of one chat stream frame. The error field
// appears as either a boolean or a string depending on the failure path.
type chatPayload struct {
	Content        string          `json:"content"`
	ConversationID string          `json:"conversationId"`
	IsFinal        bool            `json:"isFinal"`
	Error          json.RawMessage `json:"error"`
	Message        string          `json:"message"`
}

func (p *chatPayload) failed() bool {
	switch string(p.Error) {
	case "", "null", "false", `""`:
		return false
	}
	return true
}

// decodeChatPayload maps a frame payload to a delta. Error frames collapse
// to a final replacement carrying the fixed failure message.
func decodeChatPayload(payload string) (*ChatDelta, error) {
	var p chatPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, err
	}
	if p.failed() {
		return &ChatDelta{
			Content:        FailureMessage,
			Replace:        true,
			ConversationID: p.ConversationID,
			Final:          true,
			Failed:         true,
		}, nil
	}
	if p.Content == "" && p.ConversationID == "" && !p.IsFinal {
		return nil, nil
	}
	return &ChatDelta{
		Content: p.Content,
		// A final frame only replaces when it actually carries text; a bare
		// final marker seals the turn and keeps what accumulated.
		Replace:        p.IsFinal && p.Content != "",
		ConversationID: p.ConversationID,
		Final:          p.IsFinal,
	}, nil
}
