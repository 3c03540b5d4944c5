package englify

import (
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	placeholderPrefix = "temp-"
	titleLimit        = 50
	titleTurnWindow   = 2
)

// Entry is one conversation tracked by a ConversationLog.
type Entry struct {
	ID    string
	Title string
	Turns []Turn
}

// placeholder reports whether the entry still carries a client-side id.
func (e *Entry) placeholder() bool {
	return strings.HasPrefix(e.ID, placeholderPrefix)
}

// ConversationLog is the client-side conversation list. New conversations
// begin under a placeholder id and are promoted to the server id the first
// time a stream event names one. At most one placeholder is outstanding at a
// time. Safe for concurrent use.
type ConversationLog struct {
	mu      sync.Mutex
	entries []*Entry
	entropy *ulid.MonotonicEntropy
}

// NewConversationLog creates an empty log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Start opens a new conversation under a fresh placeholder id and returns
// that id.
func (l *ConversationLog) Start() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := placeholderPrefix + ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
	l.entries = append([]*Entry{{ID: id}}, l.entries...)
	return id
}

// Promote rebinds the placeholder conversation tempID to the server id.
// Promotion happens at most once; later calls with the same pair are no-ops
// and a mismatched tempID changes nothing.
func (l *ConversationLog) Promote(tempID, serverID string) bool {
	if serverID == "" || !strings.HasPrefix(tempID, placeholderPrefix) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.ID == tempID && e.placeholder() {
			e.ID = serverID
			return true
		}
	}
	return false
}

// Get returns the entry with the given id, or nil.
func (l *ConversationLog) Get(id string) *Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.find(id)
}

// Entries returns a snapshot of the log, newest first.
func (l *ConversationLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
		out[i].Turns = append([]Turn(nil), e.Turns...)
	}
	return out
}

// AppendUser records a final user turn and refreshes the title.
func (l *ConversationLog) AppendUser(id, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.find(id)
	if e == nil {
		return
	}
	e.Turns = append(e.Turns, Turn{Role: RoleUser, Content: content, Final: true})
	l.retitle(e)
}

// ApplyDelta routes one stream event to the conversation identified by id,
// promoting a placeholder on first sight of the server id. It returns the
// conversation's current id.
func (l *ConversationLog) ApplyDelta(id string, delta *ChatDelta) string {
	if delta.ConversationID != "" && delta.ConversationID != id {
		if l.Promote(id, delta.ConversationID) {
			id = delta.ConversationID
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.find(id)
	if e == nil {
		return id
	}
	applyTurn(e, delta)
	l.retitle(e)
	return id
}

// Finalize seals the open assistant turn of a conversation, keeping its
// accumulated content.
func (l *ConversationLog) Finalize(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.find(id)
	if e == nil {
		return
	}
	if n := len(e.Turns); n > 0 && !e.Turns[n-1].Final {
		e.Turns[n-1].Final = true
	}
	l.retitle(e)
}

// Consume drains a chat stream into the conversation identified by id,
// promoting its placeholder when the server names an id, and finalizes the
// assistant turn at the terminal marker. It returns the conversation's final
// id.
func (l *ConversationLog) Consume(id string, stream *ChatStream) (string, error) {
	for {
		delta, err := stream.Next()
		if err == io.EOF {
			l.Finalize(id)
			return id, nil
		}
		if err != nil {
			l.Finalize(id)
			return id, err
		}
		id = l.ApplyDelta(id, delta)
		if delta.Failed {
			return id, nil
		}
	}
}

// retitle recomputes the title from the first user turn. The rule only runs
// while the conversation is young; afterwards the title is user-owned.
func (l *ConversationLog) retitle(e *Entry) {
	if len(e.Turns) > titleTurnWindow {
		return
	}
	for _, turn := range e.Turns {
		if turn.Role != RoleUser {
			continue
		}
		e.Title = TitleFor(turn.Content)
		return
	}
}

func (l *ConversationLog) find(id string) *Entry {
	for _, e := range l.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func applyTurn(e *Entry, delta *ChatDelta) {
	n := len(e.Turns)
	open := n > 0 && e.Turns[n-1].Role == RoleAssistant && !e.Turns[n-1].Final

	switch {
	case open && delta.Replace:
		e.Turns[n-1].Content = delta.Content
		e.Turns[n-1].Final = delta.Final
	case open:
		e.Turns[n-1].Content += delta.Content
		e.Turns[n-1].Final = delta.Final
	case delta.Content != "":
		e.Turns = append(e.Turns, Turn{Role: RoleAssistant, Content: delta.Content, Final: delta.Final})
	}
}

// TitleFor derives a conversation title from its first user message:
// the message itself, truncated with an ellipsis past the length limit.
func TitleFor(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
