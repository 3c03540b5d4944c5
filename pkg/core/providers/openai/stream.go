package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// chatStream implements core.ChatStream over an OpenAI SSE response body.
type chatStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	err      error
	finished bool
}

// chatChunk is the OpenAI streaming chunk format.
type chatChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

func newChatStream(body io.ReadCloser) *chatStream {
	return &chatStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next content delta.
// Returns "", io.EOF when the stream is complete.
func (s *chatStream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.finished {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.finished = true
				return "", io.EOF
			}
			s.err = err
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.finished = true
			return "", io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunks are skipped; the provider keeps streaming.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
		if chunk.Choices[0].FinishReason != "" {
			s.finished = true
			return "", io.EOF
		}
	}
}

// Close releases the underlying response body.
func (s *chatStream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
