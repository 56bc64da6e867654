package domain

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Post is an inbound post notification.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Link string `json:"link"`
}

// ProcessedPost is a ledger entry for a post that has already been fanned out.
type ProcessedPost struct {
	PostID      string    `json:"post_id"`
	Text        string    `json:"text"`
	Link        string    `json:"link"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DerivePostID returns the identifier used when the source does not supply
// one: the hex MD5 of "link:text". Existing ledgers depend on this exact form.
func DerivePostID(link, text string) string {
	sum := md5.Sum([]byte(link + ":" + text))
	return hex.EncodeToString(sum[:])
}

// WithID returns the post with ID filled in from its content when empty.
func (p Post) WithID() Post {
	if p.ID == "" {
		p.ID = DerivePostID(p.Link, p.Text)
	}
	return p
}
