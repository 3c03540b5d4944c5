package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/englify-app/englify/pkg/core"
	"github.com/englify-app/englify/pkg/gateway/auth"
	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/metrics"
	"github.com/englify-app/englify/pkg/gateway/mw"
	"github.com/englify-app/englify/pkg/gateway/sse"
	"github.com/englify-app/englify/pkg/gateway/store"
)

const (
	titleLimit = 50

	// titleTurnWindow bounds when the title still tracks the latest user
	// message; past two persisted messages the title is considered settled.
	titleTurnWindow = 2
)

type ChatHandler struct {
	Config  config.Config
	Store   store.Store
	Chat    core.ChatProvider
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Streams caps concurrent chat streams when non-nil.
	Streams chan struct{}
}

type chatRequest struct {
	Message        string          `json:"message"`
	ConversationID string          `json:"conversationId"`
	ChatHistory    []core.ChatTurn `json:"chatHistory"`
	AudioOrigin    bool            `json:"audioOrigin"`
}

type chatFrame struct {
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeCoreErrorJSON(w, reqID, core.NewAuthenticationError("missing principal"), http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("failed to read request body"), http.StatusBadRequest)
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("message is required", "message"), http.StatusBadRequest)
		return
	}

	if h.Streams != nil {
		select {
		case h.Streams <- struct{}{}:
			defer func() { <-h.Streams }()
		default:
			writeCoreErrorJSON(w, reqID, core.NewRateLimitError("too many concurrent streams"), http.StatusTooManyRequests)
			return
		}
	}

	conv, err := h.resolveConversation(r.Context(), p.UserID, req)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	if _, err := h.Store.AddMessage(r.Context(), conv.ID, "user", req.Message, req.AudioOrigin); err != nil {
		writeErr(w, reqID, err)
		return
	}
	assistant, err := h.Store.AddMessage(r.Context(), conv.ID, "assistant", "", false)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	ctx := r.Context()
	if h.Config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.HandlerTimeout)
		defer cancel()
	}

	stream, err := h.Chat.StreamChat(ctx, &core.ChatRequest{
		System:  h.Config.SystemPrompt,
		History: req.ChatHistory,
		Message: req.Message,
	})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	defer func() { _ = stream.Close() }()

	sw, err := sse.New(w)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.ChatStreamsActive.Inc()
		defer h.Metrics.ChatStreamsActive.Dec()
	}

	var full strings.Builder
	for {
		delta, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if h.Logger != nil {
				h.Logger.Error("chat stream failed", "request_id", reqID, "conversation_id", conv.ID, "error", err)
			}
			_ = sw.Send(chatFrame{
				Error:          "stream failed",
				Message:        "The assistant could not finish this reply.",
				ConversationID: conv.ID,
			})
			return
		}
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := sw.Send(chatFrame{Content: delta, ConversationID: conv.ID}); err != nil {
			// Client went away; the partial reply still gets persisted below.
			break
		}
		if h.Metrics != nil {
			h.Metrics.ChatFramesTotal.Inc()
		}
	}

	h.finishTurn(ctx, reqID, conv.ID, assistant.ID, req.Message, full.String())
	_ = sw.Done()
}

// resolveConversation loads the requested conversation or creates a fresh one
// titled from the message. A conversation owned by someone else reads as an
// authentication failure, matching the login-gated app surface.
func (h ChatHandler) resolveConversation(ctx context.Context, userID string, req chatRequest) (*store.Conversation, error) {
	if req.ConversationID == "" {
		return h.Store.CreateConversation(ctx, userID, conversationTitle(req.Message))
	}
	conv, err := h.Store.GetConversation(ctx, req.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NewNotFoundError("conversation not found")
	}
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, core.NewAuthenticationError("conversation does not belong to caller")
	}
	return conv, nil
}

// finishTurn persists the assistant reply and recomputes the title while the
// conversation is still young.
func (h ChatHandler) finishTurn(ctx context.Context, reqID, convID, assistantID, userMessage, reply string) {
	if err := h.Store.UpdateMessage(ctx, assistantID, reply); err != nil && h.Logger != nil {
		h.Logger.Error("persist assistant reply", "request_id", reqID, "conversation_id", convID, "error", err)
	}
	n, err := h.Store.CountMessages(ctx, convID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("count messages", "request_id", reqID, "conversation_id", convID, "error", err)
		}
		return
	}
	if n <= titleTurnWindow {
		if err := h.Store.RenameConversation(ctx, convID, conversationTitle(userMessage)); err != nil && h.Logger != nil {
			h.Logger.Error("retitle conversation", "request_id", reqID, "conversation_id", convID, "error", err)
		}
	}
}

// conversationTitle truncates the message to the title limit, counting runes
// so multi-byte text never splits mid-character.
func conversationTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
