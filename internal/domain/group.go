package domain

import "time"

// Group is a destination chat group. Group IDs are assigned by the chat
// platform before the group is known here.
type Group struct {
	ID         int64     `json:"id"`
	GroupID    string    `json:"group_id"`
	Name       string    `json:"name,omitempty"`
	InviteLink string    `json:"invite_link,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsComplete reports whether the group has both a display name and an invite link.
func (g Group) IsComplete() bool {
	return g.Name != "" && g.InviteLink != ""
}
