package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/englify-app/englify/pkg/core"
	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/metrics"
	"github.com/englify-app/englify/pkg/gateway/mw"
)

// RealtimeSessionHandler mints ephemeral realtime credentials and relays the
// provider payload verbatim so the client sees the same shape the provider
// documents.
type RealtimeSessionHandler struct {
	Config     config.Config
	Authorizer core.RealtimeAuthorizer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func (h RealtimeSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	var req struct {
		Model string `json:"model"`
		Voice string `json:"voice"`
	}
	// An empty body is fine; both fields have configured defaults.
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
			return
		}
	}
	if req.Model == "" {
		req.Model = h.Config.RealtimeModel
	}
	if req.Voice == "" {
		req.Voice = h.Config.RealtimeVoice
	}

	cred, err := h.Authorizer.MintRealtimeCredential(r.Context(), req.Model, req.Voice)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.RealtimeMints.WithLabelValues("error").Inc()
		}
		writeErr(w, reqID, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.RealtimeMints.WithLabelValues("ok").Inc()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(cred.Raw)
}

// RealtimeNegotiateHandler relays an opaque session description offer to the
// provider. The caller authenticates with the ephemeral bearer it just
// minted, not a gateway session.
type RealtimeNegotiateHandler struct {
	Config     config.Config
	Authorizer core.RealtimeAuthorizer
	Logger     *slog.Logger
}

func (h RealtimeNegotiateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	bearer, ok := parseBearer(r)
	if !ok {
		writeCoreErrorJSON(w, reqID, core.NewAuthenticationError("missing realtime bearer"), http.StatusUnauthorized)
		return
	}

	model := strings.TrimSpace(r.URL.Query().Get("model"))
	if model == "" {
		model = h.Config.RealtimeModel
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	offer, err := io.ReadAll(r.Body)
	if err != nil || len(offer) == 0 {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("missing session description offer"), http.StatusBadRequest)
		return
	}

	answer, err := h.Authorizer.NegotiateRealtime(r.Context(), model, bearer, string(offer))
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, answer)
}

func parseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	return token, token != ""
}
