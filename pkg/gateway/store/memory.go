package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a Store kept entirely in process memory. It backs development
// runs without a DATABASE_URL and the handler tests.
type Memory struct {
	mu            sync.Mutex
	now           func() time.Time
	conversations map[string]*Conversation
	messages      map[string][]*Message // keyed by conversation id
}

func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

func (m *Memory) CreateConversation(_ context.Context, userID, title string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	c := &Conversation{
		ID:        NewConversationID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[c.ID] = c
	out := *c
	return &out, nil
}

func (m *Memory) GetConversation(_ context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) RenameConversation(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) AddMessage(_ context.Context, conversationID, role, content string, audioOrigin bool) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now().UTC()
	msg := &Message{
		ID:             NewMessageID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		AudioOrigin:    audioOrigin,
		CreatedAt:      now,
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	c.UpdatedAt = now
	out := *msg
	return &out, nil
}

func (m *Memory) UpdateMessage(_ context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == id {
				msg.Content = content
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[conversationID]
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, *msg)
	}
	return out, nil
}

func (m *Memory) CountMessages(_ context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[conversationID]), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
