package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/englify-app/englify/pkg/core"
	"github.com/englify-app/englify/pkg/gateway/auth"
	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/mw"
	"github.com/englify-app/englify/pkg/gateway/store"
)

type conversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageResp struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	AudioOrigin bool      `json:"audioOrigin,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type conversationDetail struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Messages []messageResp `json:"messages"`
}

// ConversationsHandler serves the conversation collection route.
type ConversationsHandler struct {
	Store  store.Store
	Logger *slog.Logger
}

func (h ConversationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeCoreErrorJSON(w, reqID, core.NewAuthenticationError("missing principal"), http.StatusUnauthorized)
		return
	}

	convs, err := h.Store.ListConversations(r.Context(), p.UserID)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// ConversationHandler serves one conversation: fetch, rename, delete.
type ConversationHandler struct {
	Config config.Config
	Store  store.Store
	Logger *slog.Logger
}

func (h ConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeCoreErrorJSON(w, reqID, core.NewAuthenticationError("missing principal"), http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	conv, err := h.Store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeCoreErrorJSON(w, reqID, core.NewNotFoundError("conversation not found"), http.StatusNotFound)
		return
	}
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	if conv.UserID != p.UserID {
		writeCoreErrorJSON(w, reqID, core.NewAuthenticationError("conversation does not belong to caller"), http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, reqID, conv)
	case http.MethodPatch:
		h.rename(w, r, reqID, conv)
	case http.MethodDelete:
		h.delete(w, r, reqID, conv)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h ConversationHandler) get(w http.ResponseWriter, r *http.Request, reqID string, conv *store.Conversation) {
	msgs, err := h.Store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	out := conversationDetail{
		ID:       conv.ID,
		Title:    conv.Title,
		Messages: make([]messageResp, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageResp{
			ID:          m.ID,
			Role:        m.Role,
			Content:     m.Content,
			AudioOrigin: m.AudioOrigin,
			CreatedAt:   m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h ConversationHandler) rename(w http.ResponseWriter, r *http.Request, reqID string, conv *store.Conversation) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("failed to read request body"), http.StatusBadRequest)
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("title must not be empty", "title"), http.StatusBadRequest)
		return
	}
	if err := h.Store.RenameConversation(r.Context(), conv.ID, req.Title); err != nil {
		writeErr(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationSummary{ID: conv.ID, Title: req.Title, UpdatedAt: conv.UpdatedAt})
}

func (h ConversationHandler) delete(w http.ResponseWriter, r *http.Request, reqID string, conv *store.Conversation) {
	if err := h.Store.DeleteConversation(r.Context(), conv.ID); err != nil {
		writeErr(w, reqID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
