package domain

import (
	"strings"
	"time"
)

// Subscriber is a registered chat user together with the keywords they follow.
// The three group fields are either all set or all empty.
type Subscriber struct {
	ID         int64     `json:"id"`
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Intention  string    `json:"intention"`
	GroupID    string    `json:"group_id,omitempty"`
	GroupName  string    `json:"group_name,omitempty"`
	InviteLink string    `json:"invite_link,omitempty"`
	Keywords   []string  `json:"keywords,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasGroup reports whether the subscriber has been bound to a destination group.
func (s Subscriber) HasGroup() bool {
	return s.GroupID != ""
}

type NewSubscriber struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Intention string `json:"intention"`
	Keywords  string `json:"keywords"`
}

// ParseKeywords splits a comma separated interest list into lowercased terms.
// Blank entries are dropped. Repeated terms are kept; the store collapses them.
func ParseKeywords(text string) []string {
	parts := strings.Split(text, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
	}
	return keywords
}
