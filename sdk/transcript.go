package englify

// Role labels a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the in-session transcript.
type Turn struct {
	Role    Role
	Content string
	Final   bool
}

// Transcript is the ordered in-session transcript. It maintains at most one
// non-final turn, always at the tail. Not safe for concurrent use; callers
// serialize access.
type Transcript struct {
	turns []Turn
}

// Turns returns a copy of the current turns, oldest first.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len reports the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Append adds a final turn. Any open tail turn is finalized first so a
// finished utterance is never reordered behind a partial one.
func (t *Transcript) Append(role Role, content string) {
	t.sealTail()
	t.turns = append(t.turns, Turn{Role: role, Content: content, Final: true})
}

// UpdatePartial replaces the content of the open assistant turn at the tail,
// creating it if absent. A final tail is left intact and a new open turn is
// started after it.
func (t *Transcript) UpdatePartial(content string) {
	if n := len(t.turns); n > 0 {
		tail := &t.turns[n-1]
		if tail.Role == RoleAssistant && !tail.Final {
			tail.Content = content
			return
		}
	}
	t.turns = append(t.turns, Turn{Role: RoleAssistant, Content: content})
}

// FinalizePartial marks the open assistant tail final, replacing its content
// when content is non-empty. Without an open tail it appends a final turn.
func (t *Transcript) FinalizePartial(content string) {
	if n := len(t.turns); n > 0 {
		tail := &t.turns[n-1]
		if tail.Role == RoleAssistant && !tail.Final {
			if content != "" {
				tail.Content = content
			}
			tail.Final = true
			return
		}
	}
	if content != "" {
		t.turns = append(t.turns, Turn{Role: RoleAssistant, Content: content, Final: true})
	}
}

// Reset clears all turns.
func (t *Transcript) Reset() { t.turns = nil }

func (t *Transcript) sealTail() {
	if n := len(t.turns); n > 0 && !t.turns[n-1].Final {
		t.turns[n-1].Final = true
	}
}
