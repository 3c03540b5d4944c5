// Package store persists conversations and messages. The gateway talks to
// the Store interface only; Postgres backs production and the in-memory
// implementation backs development and tests.
package store

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound reports that no row matched the given id.
var ErrNotFound = errors.New("store: not found")

type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	AudioOrigin    bool
	CreatedAt      time.Time
}

type Store interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	RenameConversation(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, conversationID, role, content string, audioOrigin bool) (*Message, error)
	// UpdateMessage replaces a message's content, used to fill the assistant
	// row created empty before streaming began.
	UpdateMessage(ctx context.Context, id, content string) error
	// ListMessages returns a conversation's messages, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	Ping(ctx context.Context) error
	Close()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newID(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewConversationID mints a conversation id.
func NewConversationID() string { return newID("conv") }

// NewMessageID mints a message id.
func NewMessageID() string { return newID("msg") }
