package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Writer emits server-sent frames for the chat stream. Frames carry only a
// data line; clients dispatch on the payload, not an event name.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

func New(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Writer{w: w, flusher: f}, nil
}

// Send marshals data and writes it as one frame.
func (sw *Writer) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return sw.sendRaw(string(b))
}

// Done writes the terminal marker.
func (sw *Writer) Done() error {
	return sw.sendRaw("[DONE]")
}

func (sw *Writer) sendRaw(payload string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
