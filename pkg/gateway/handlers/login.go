package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/englify-app/englify/pkg/core"
	"github.com/englify-app/englify/pkg/gateway/auth"
	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/mw"
)

type LoginHandler struct {
	Config   config.Config
	Identity auth.Identity
	Sessions *auth.Sessions
	Logger   *slog.Logger
}

func (h LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("failed to read request body"), http.StatusBadRequest)
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("email and password are required", "email"), http.StatusBadRequest)
		return
	}

	p, err := h.Identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	token := h.Sessions.Issue(*p)
	if h.Logger != nil {
		h.Logger.Info("login", "request_id", reqID, "user_id", p.UserID)
	}

	type userResp struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	writeJSON(w, http.StatusOK, struct {
		Token string   `json:"token"`
		User  userResp `json:"user"`
	}{
		Token: token,
		User:  userResp{ID: p.UserID, Email: p.Email},
	})
}
