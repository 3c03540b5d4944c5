package englify

import (
	"bytes"
	"strings"
)

// doneSentinel terminates a chat stream.
const doneSentinel = "[DONE]"

// frameScanner splits a byte stream into blank-line-delimited frames. Bytes
// of an incomplete frame are carried over between Feed calls, so a frame (or
// a multi-byte rune) split across network reads reassembles correctly.
type frameScanner struct {
	buf []byte
}

// Feed appends chunk to the buffer and returns every complete frame now
// available, in order. The trailing partial frame stays buffered.
func (s *frameScanner) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var frames []string
	for {
		i := bytes.Index(s.buf, []byte("\n\n"))
		if i < 0 {
			return frames
		}
		frame := string(s.buf[:i])
		s.buf = s.buf[i+2:]
		if frame != "" {
			frames = append(frames, frame)
		}
	}
}

// Flush returns the buffered trailing frame, if any. Called once at end of
// stream so a final frame without a trailing blank line is not dropped.
func (s *frameScanner) Flush() (string, bool) {
	frame := strings.TrimRight(string(s.buf), "\n")
	s.buf = nil
	if frame == "" {
		return "", false
	}
	return frame, true
}

// framePayload extracts the payload from a frame's data lines. A frame may
// carry other field lines (event names, comments); only lines with the
// "data:" prefix contribute, and a frame without any is skipped. Multiple
// data lines join with a newline, per the SSE convention.
func framePayload(frame string) (string, bool) {
	var payloads []string
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payloads = append(payloads, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	if len(payloads) == 0 {
		return "", false
	}
	return strings.Join(payloads, "\n"), true
}
