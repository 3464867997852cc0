package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, client Client) Event {
	t.Helper()
	select {
	case data, ok := <-client:
		require.True(t, ok, "client channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	default:
		t.Fatal("no event queued on client")
		return Event{}
	}
}

func TestBindAndLookup(t *testing.T) {
	h := NewHub()
	h.Add("c1", make(Client, 8))
	h.Bind("c1", "alice", "alice.png")

	connID, ok := h.Lookup("alice")
	assert.True(t, ok)
	assert.Equal(t, "c1", connID)

	sess, ok := h.Session("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, "alice.png", sess.ProfilePic)

	_, ok = h.Lookup("bob")
	assert.False(t, ok)
}

func TestIsNameOnlineIgnoresCase(t *testing.T) {
	h := NewHub()
	h.Add("c1", make(Client, 8))
	h.Bind("c1", "Bob", "bob.png")

	assert.True(t, h.IsNameOnline("bob"))
	assert.True(t, h.IsNameOnline("BOB"))
	assert.False(t, h.IsNameOnline("alice"))

	// Lookup stays exact-match.
	_, ok := h.Lookup("bob")
	assert.False(t, ok)
}

func TestRemoveClosesClientOnce(t *testing.T) {
	h := NewHub()
	client := make(Client, 8)
	h.Add("c1", client)
	h.Bind("c1", "alice", "")

	sess, bound := h.Remove("c1")
	require.True(t, bound)
	assert.Equal(t, "alice", sess.Username)

	_, ok := <-client
	assert.False(t, ok, "channel must be closed")

	// A second Remove for the same connection is a no-op.
	_, bound = h.Remove("c1")
	assert.False(t, bound)

	_, ok = h.Lookup("alice")
	assert.False(t, ok)
}

func TestRebindDropsPreviousName(t *testing.T) {
	h := NewHub()
	client := make(Client, 8)
	h.Add("c1", client)
	h.Bind("c1", "alice", "alice.png")
	h.Bind("c1", "bob", "bob.png")

	// One binding per connection: the old name must not resolve anymore.
	_, ok := h.Lookup("alice")
	assert.False(t, ok, "stale name must not resolve to a rebound connection")

	connID, ok := h.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, "c1", connID)

	sess, ok := h.Session("c1")
	require.True(t, ok)
	assert.Equal(t, "bob", sess.Username)

	// A message addressed to the departed identity goes nowhere.
	h.SendToUser("alice", Event{Type: "newMessage"})
	assert.Empty(t, client)

	require.Len(t, h.Sessions(), 1)
}

func TestSessionsAreOrderedByUsername(t *testing.T) {
	h := NewHub()
	h.Add("c1", make(Client, 8))
	h.Add("c2", make(Client, 8))
	h.Bind("c1", "zoe", "")
	h.Bind("c2", "alice", "")

	sessions := h.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "alice", sessions[0].Username)
	assert.Equal(t, "zoe", sessions[1].Username)
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	h := NewHub()
	c1 := make(Client, 8)
	c2 := make(Client, 8)
	h.Add("c1", c1)
	h.Add("c2", c2)
	h.Bind("c1", "alice", "")

	h.Broadcast(Event{Type: "userList", Payload: []string{"alice"}})

	assert.Equal(t, "userList", recv(t, c1).Type)
	// Unbound connections still receive broadcasts.
	assert.Equal(t, "userList", recv(t, c2).Type)
}

func TestSendToUserSkipsOffline(t *testing.T) {
	h := NewHub()
	c1 := make(Client, 8)
	h.Add("c1", c1)
	h.Bind("c1", "alice", "")

	h.SendToUser("bob", Event{Type: "newMessage"})
	assert.Empty(t, c1)

	h.SendToUser("alice", Event{Type: "newMessage"})
	assert.Equal(t, "newMessage", recv(t, c1).Type)
}
