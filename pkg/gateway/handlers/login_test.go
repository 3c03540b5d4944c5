package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/englify-app/englify/pkg/gateway/auth"
)

func newLoginHandler() LoginHandler {
	return LoginHandler{
		Config:   baseChatConfig(),
		Identity: auth.DevIdentity{},
		Sessions: auth.NewSessions(time.Hour),
	}
}

func postLogin(h LoginHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte(body)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLoginHandler_IssuesSession(t *testing.T) {
	h := newLoginHandler()
	rr := postLogin(h, `{"email":"student@example.com","password":"secret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" || resp.User.ID == "" || resp.User.Email != "student@example.com" {
		t.Fatalf("resp=%+v", resp)
	}

	p, ok := h.Sessions.Lookup(resp.Token)
	if !ok || p.UserID != resp.User.ID {
		t.Fatalf("issued token does not resolve: ok=%v p=%+v", ok, p)
	}
}

func TestLoginHandler_RejectsBadCredentials(t *testing.T) {
	h := newLoginHandler()
	rr := postLogin(h, `{"email":"student@example.com","password":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLoginHandler_RejectsInvalidJSON(t *testing.T) {
	h := newLoginHandler()
	rr := postLogin(h, `{"email":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "invalid JSON body") {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestLoginHandler_MethodNotAllowed(t *testing.T) {
	h := newLoginHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}
