package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/englify-app/englify/pkg/gateway/store"
)

func itemRequest(method, id, body, userID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, "/api/conversations/"+id, nil)
	} else {
		r = httptest.NewRequest(method, "/api/conversations/"+id, bytes.NewReader([]byte(body)))
	}
	r.SetPathValue("id", id)
	return withPrincipal(r, userID)
}

func TestConversationsHandler_ListsOwnOnly(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	mine, _ := st.CreateConversation(ctx, "user_1", "mine")
	_, _ = st.CreateConversation(ctx, "user_2", "theirs")

	h := ConversationsHandler{Store: st}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withPrincipal(httptest.NewRequest(http.MethodGet, "/api/conversations", nil), "user_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var list []conversationSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("list=%+v", list)
	}
}

func TestConversationHandler_GetWithMessages(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	conv, _ := st.CreateConversation(ctx, "user_1", "chat")
	_, _ = st.AddMessage(ctx, conv.ID, "user", "hi", false)
	_, _ = st.AddMessage(ctx, conv.ID, "assistant", "hello!", false)

	h := ConversationHandler{Config: baseChatConfig(), Store: st}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, itemRequest(http.MethodGet, conv.ID, "", "user_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var detail conversationDetail
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.ID != conv.ID || len(detail.Messages) != 2 {
		t.Fatalf("detail=%+v", detail)
	}
	if detail.Messages[0].Role != "user" || detail.Messages[1].Content != "hello!" {
		t.Fatalf("messages=%+v", detail.Messages)
	}
}

func TestConversationHandler_OwnershipMismatch(t *testing.T) {
	st := store.NewMemory()
	conv, _ := st.CreateConversation(context.Background(), "user_2", "theirs")

	h := ConversationHandler{Config: baseChatConfig(), Store: st}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, itemRequest(http.MethodGet, conv.ID, "", "user_1"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestConversationHandler_RenameRejectsEmptyTitle(t *testing.T) {
	st := store.NewMemory()
	conv, _ := st.CreateConversation(context.Background(), "user_1", "chat")

	h := ConversationHandler{Config: baseChatConfig(), Store: st}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, itemRequest(http.MethodPatch, conv.ID, `{"title":"  "}`, "user_1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"param":"title"`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestConversationHandler_RenameAndDelete(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	conv, _ := st.CreateConversation(ctx, "user_1", "chat")

	h := ConversationHandler{Config: baseChatConfig(), Store: st}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, itemRequest(http.MethodPatch, conv.ID, `{"title":"Better title"}`, "user_1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("rename status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, _ := st.GetConversation(ctx, conv.ID)
	if got.Title != "Better title" {
		t.Fatalf("title=%q", got.Title)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, itemRequest(http.MethodDelete, conv.ID, "", "user_1"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, itemRequest(http.MethodGet, conv.ID, "", "user_1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rr.Code)
	}
}
