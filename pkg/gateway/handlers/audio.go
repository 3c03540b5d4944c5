package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/englify-app/englify/pkg/core"
	"github.com/englify-app/englify/pkg/gateway/config"
	"github.com/englify-app/englify/pkg/gateway/metrics"
	"github.com/englify-app/englify/pkg/gateway/mw"
)

// TranscribeHandler proxies multipart audio uploads to speech-to-text.
type TranscribeHandler struct {
	Config      config.Config
	Transcriber core.Transcriber
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func (h TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxAudioBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("missing audio file", "audio"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	start := time.Now()
	text, err := h.Transcriber.Transcribe(r.Context(), file, header.Filename, contentType)
	if h.Metrics != nil {
		h.Metrics.TranscribeSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		writeErr(w, reqID, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Text string `json:"text"`
	}{Text: text})
}

// SpeechHandler proxies text-to-speech and streams the audio bytes back.
type SpeechHandler struct {
	Config      config.Config
	Synthesizer core.Synthesizer
	Logger      *slog.Logger
}

func (h SpeechHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
		Text  string  `json:"text"`
		Voice string  `json:"voice"`
		Speed float64 `json:"speed"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("invalid JSON body"), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeCoreErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("text is required", "text"), http.StatusBadRequest)
		return
	}

	audio, contentType, err := h.Synthesizer.Synthesize(r.Context(), &core.SpeechRequest{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
	})
	if err != nil {
		writeErr(w, reqID, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, audio)
}
