package models

import (
	"sort"
	"strings"
)

// Message is a single chat message within a two-party conversation. The JSON
// tags define the shape used both on the wire and in the fallback snapshot
// file. The avatar is captured at send time so history keeps the picture the
// sender had back then.
type Message struct {
	ID              uint   `gorm:"primarykey" json:"-"`
	ConversationKey string `gorm:"size:512;not null;index" json:"-"`
	Sender          string `gorm:"size:255;not null" json:"sender"`
	Text            string `gorm:"not null" json:"text"`
	Timestamp       int64  `gorm:"not null;index" json:"timestamp"`
	Avatar          string `gorm:"size:512" json:"avatar,omitempty"`
}

// ConversationKey builds the canonical identifier for the conversation
// between two users: both usernames sorted lexicographically and joined with
// a colon, so the same key comes out regardless of who initiated.
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

// ConversationMembers splits a canonical key back into its two usernames.
func ConversationMembers(key string) (string, string) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}
