package bot

import "sync"

// State is a step of the registration or update dialogue.
type State int

const (
	AwaitingName State = iota + 1
	AwaitingEmail
	AwaitingIntention
	AwaitingInterests
	UpdatingInterests
)

func (s State) String() string {
	switch s {
	case AwaitingName:
		return "awaiting_name"
	case AwaitingEmail:
		return "awaiting_email"
	case AwaitingIntention:
		return "awaiting_intention"
	case AwaitingInterests:
		return "awaiting_interests"
	case UpdatingInterests:
		return "updating_interests"
	}
	return "unknown"
}

// Conversation is the in-progress dialogue with one chat.
type Conversation struct {
	State     State
	Name      string
	Email     string
	Intention string
}

// Conversations holds dialogue state by chat id. It lives in memory only;
// a restart drops unfinished registrations.
type Conversations struct {
	mu   sync.Mutex
	byID map[int64]Conversation
}

func NewConversations() *Conversations {
	return &Conversations{byID: make(map[int64]Conversation)}
}

// Get returns a copy of the chat's conversation.
func (c *Conversations) Get(chatID int64) (Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.byID[chatID]
	return conv, ok
}

func (c *Conversations) Set(chatID int64, conv Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[chatID] = conv
}

// Delete removes the chat's conversation and reports whether one existed.
func (c *Conversations) Delete(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byID[chatID]
	delete(c.byID, chatID)
	return ok
}

func (c *Conversations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
