package store

import (
	"sort"
	"time"

	"github.com/AudricHarris/Z-Chat/internal/models"
)

// SelfSender is the sentinel sender written into reshaped history so a client
// can render its own messages without comparing usernames.
const SelfSender = "me"

// Conversations is the in-memory message log, one ordered slice per canonical
// user pair. Appends persist through the Gateway; ordering is arrival order,
// with timestamps used only to re-sort on reload. Access is serialized by the
// dispatcher.
type Conversations struct {
	gw    *Gateway
	byKey map[string][]models.Message
}

// NewConversations creates an empty conversation store backed by the gateway.
func NewConversations(gw *Gateway) *Conversations {
	return &Conversations{
		gw:    gw,
		byKey: make(map[string][]models.Message),
	}
}

// Load seeds the store from persisted conversations, re-sorting each by
// timestamp to recover append order.
func (c *Conversations) Load(conversations map[string][]models.Message) {
	for key, msgs := range conversations {
		copied := append([]models.Message(nil), msgs...)
		sort.SliceStable(copied, func(i, j int) bool {
			return copied[i].Timestamp < copied[j].Timestamp
		})
		c.byKey[key] = copied
	}
}

// Append stores a new message in the conversation between from and to,
// stamping the current time, and persists it in the background. The stored
// message is returned for building outbound events.
func (c *Conversations) Append(from, to, text, avatar string) models.Message {
	key := models.ConversationKey(from, to)
	msg := models.Message{
		ConversationKey: key,
		Sender:          from,
		Text:            text,
		Timestamp:       time.Now().UnixMilli(),
		Avatar:          avatar,
	}
	c.byKey[key] = append(c.byKey[key], msg)
	c.gw.UpsertMessage(msg)
	return msg
}

// HistoryFor returns every conversation the user is a member of, keyed by the
// other participant. Each message is reshaped for that recipient: their own
// messages get the self sentinel as sender, and messages without a stored
// avatar fall back to the user's current picture (own) or the generic friend
// placeholder (others).
func (c *Conversations) HistoryFor(username, profilePic string) map[string][]models.Message {
	history := make(map[string][]models.Message)
	for key, msgs := range c.byKey {
		a, b := models.ConversationMembers(key)
		var other string
		switch username {
		case a:
			other = b
		case b:
			other = a
		default:
			continue
		}

		reshaped := make([]models.Message, 0, len(msgs))
		for _, msg := range msgs {
			mine := msg.Sender == username
			out := models.Message{
				Sender:    msg.Sender,
				Text:      msg.Text,
				Timestamp: msg.Timestamp,
				Avatar:    msg.Avatar,
			}
			if mine {
				out.Sender = SelfSender
			}
			if out.Avatar == "" {
				if mine {
					out.Avatar = profilePic
				} else {
					out.Avatar = models.FallbackAvatar
				}
			}
			reshaped = append(reshaped, out)
		}
		history[other] = reshaped
	}
	return history
}

// Snapshot returns a deep copy of every conversation, safe to hand to the
// gateway's background writer.
func (c *Conversations) Snapshot() map[string][]models.Message {
	out := make(map[string][]models.Message, len(c.byKey))
	for key, msgs := range c.byKey {
		out[key] = append([]models.Message(nil), msgs...)
	}
	return out
}
