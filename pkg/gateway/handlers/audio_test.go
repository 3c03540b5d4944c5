package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/englify-app/englify/pkg/core"
)

type fakeTranscriber struct {
	text     string
	err      error
	filename string
	received []byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	f.filename = filename
	f.received, _ = io.ReadAll(audio)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeSynthesizer struct {
	audio       []byte
	contentType string
	err         error
	lastReq     *core.SpeechRequest
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, req *core.SpeechRequest) (io.ReadCloser, string, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(bytes.NewReader(f.audio)), f.contentType, nil
}

func multipartAudio(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestTranscribeHandler_ReturnsText(t *testing.T) {
	tr := &fakeTranscriber{text: "hello world"}
	h := TranscribeHandler{Config: baseChatConfig(), Transcriber: tr}

	body, contentType := multipartAudio(t, "audio", "clip.webm", []byte("fake-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withPrincipal(req, "user_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"text":"hello world"`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
	if tr.filename != "clip.webm" || string(tr.received) != "fake-bytes" {
		t.Fatalf("upload not forwarded: filename=%q received=%q", tr.filename, tr.received)
	}
}

func TestTranscribeHandler_MissingFile(t *testing.T) {
	h := TranscribeHandler{Config: baseChatConfig(), Transcriber: &fakeTranscriber{}}

	body, contentType := multipartAudio(t, "wrong_field", "clip.webm", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withPrincipal(req, "user_1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSpeechHandler_ReturnsAudio(t *testing.T) {
	syn := &fakeSynthesizer{audio: []byte("mp3-bytes"), contentType: "audio/mpeg"}
	h := SpeechHandler{Config: baseChatConfig(), Synthesizer: syn}

	req := httptest.NewRequest(http.MethodPost, "/api/speech",
		bytes.NewReader([]byte(`{"text":"hello","voice":"alloy","speed":1.25}`)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withPrincipal(req, "user_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "mp3-bytes" {
		t.Fatalf("body=%q", rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("content type=%q", rr.Header().Get("Content-Type"))
	}
	if syn.lastReq.Voice != "alloy" || syn.lastReq.Speed != 1.25 {
		t.Fatalf("speech request=%+v", syn.lastReq)
	}
}

func TestSpeechHandler_RequiresText(t *testing.T) {
	h := SpeechHandler{Config: baseChatConfig(), Synthesizer: &fakeSynthesizer{}}

	req := httptest.NewRequest(http.MethodPost, "/api/speech", bytes.NewReader([]byte(`{"text":""}`)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withPrincipal(req, "user_1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}
