package handler

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AudricHarris/Z-Chat/internal/hub"
	"github.com/AudricHarris/Z-Chat/internal/models"
	"github.com/AudricHarris/Z-Chat/internal/store"
)

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *hub.Hub) {
	t.Helper()
	gw := store.NewGateway(nil, filepath.Join(t.TempDir(), "chat_data.json"))
	t.Cleanup(gw.Close)
	h := hub.NewHub()
	return NewDispatcher(h, store.NewGraph(gw), store.NewConversations(gw), gw), h
}

func connect(h *hub.Hub, connID string) hub.Client {
	client := make(hub.Client, 64)
	h.Add(connID, client)
	return client
}

func send(t *testing.T, d *Dispatcher, connID, cmdType string, payload interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Command{Type: cmdType, Payload: body})
	require.NoError(t, err)
	d.Handle(connID, raw)
}

// drain empties a client channel. Handlers run synchronously, so everything a
// command emitted is already queued when it returns.
func drain(t *testing.T, client hub.Client) []received {
	t.Helper()
	var events []received
	for {
		select {
		case data, ok := <-client:
			if !ok {
				return events
			}
			var ev received
			require.NoError(t, json.Unmarshal(data, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

// lastOfType returns the most recent event of the given type and decodes its
// payload into out.
func lastOfType(t *testing.T, events []received, evtType string, out interface{}) bool {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == evtType {
			if out != nil {
				require.NoError(t, json.Unmarshal(events[i].Payload, out))
			}
			return true
		}
	}
	return false
}

func register(t *testing.T, d *Dispatcher, h *hub.Hub, connID, username string) hub.Client {
	t.Helper()
	client := connect(h, connID)
	send(t, d, connID, CmdRegister, RegisterInput{Username: username, ProfilePic: username + ".png"})

	var resp RegisterResponse
	events := drain(t, client)
	require.True(t, lastOfType(t, events, EvtRegisterResponse, &resp))
	require.True(t, resp.Success, "registration of %q failed: %s", username, resp.Message)
	return client
}

func TestRegisterEmitsInitialState(t *testing.T) {
	d, h := newTestDispatcher(t)
	client := connect(h, "c1")

	send(t, d, "c1", CmdRegister, RegisterInput{Username: "alice", ProfilePic: "alice.png"})
	events := drain(t, client)

	var resp RegisterResponse
	require.True(t, lastOfType(t, events, EvtRegisterResponse, &resp))
	assert.True(t, resp.Success)

	var roster []hub.Session
	require.True(t, lastOfType(t, events, EvtUserList, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Username)
	assert.Equal(t, "alice.png", roster[0].ProfilePic)

	var friends []string
	require.True(t, lastOfType(t, events, EvtFriendList, &friends))
	assert.Empty(t, friends)

	var pending []string
	require.True(t, lastOfType(t, events, EvtPendingFriendRequests, &pending))
	assert.Empty(t, pending)

	var history map[string][]models.Message
	require.True(t, lastOfType(t, events, EvtLoadConversations, &history))
	assert.Empty(t, history)
}

func TestRegisterRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	d, h := newTestDispatcher(t)
	register(t, d, h, "c1", "Bob")

	client2 := connect(h, "c2")
	send(t, d, "c2", CmdRegister, RegisterInput{Username: "bob"})

	var resp RegisterResponse
	events := drain(t, client2)
	require.True(t, lastOfType(t, events, EvtRegisterResponse, &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, NameTakenMessage, resp.Message)

	// The rejected connection stays unbound.
	_, bound := h.Session("c2")
	assert.False(t, bound)
}

func TestRegisterRejectsAlreadyBoundConnection(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")

	// The session username is immutable: a second register on the same
	// connection is refused, whatever the name.
	send(t, d, "c1", CmdRegister, RegisterInput{Username: "bob"})

	var resp RegisterResponse
	events := drain(t, alice)
	require.True(t, lastOfType(t, events, EvtRegisterResponse, &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	sess, bound := h.Session("c1")
	require.True(t, bound)
	assert.Equal(t, "alice", sess.Username)

	connID, ok := h.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", connID)
	_, ok = h.Lookup("bob")
	assert.False(t, ok)

	// Private messages still reach the original identity.
	carol := register(t, d, h, "c2", "carol")
	drain(t, alice)
	drain(t, carol)
	send(t, d, "c2", CmdSendMessage, SendMessageInput{To: "alice", Text: "hi"})

	var incoming NewMessage
	require.True(t, lastOfType(t, drain(t, alice), EvtNewMessage, &incoming))
	assert.Equal(t, "carol", incoming.From)

	// "bob" was never taken, so another connection may claim it.
	register(t, d, h, "c3", "bob")
}

func TestRegisterRejectsKnownOfflineName(t *testing.T) {
	d, h := newTestDispatcher(t)
	register(t, d, h, "c1", "alice")
	d.Disconnect("c1")

	client2 := connect(h, "c2")
	send(t, d, "c2", CmdRegister, RegisterInput{Username: "alice"})

	var resp RegisterResponse
	require.True(t, lastOfType(t, drain(t, client2), EvtRegisterResponse, &resp))
	assert.False(t, resp.Success)
}

func TestFriendRequestFlow(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	bob := register(t, d, h, "c2", "bob")
	drain(t, alice) // discard bob's userList broadcast

	send(t, d, "c1", CmdAddFriend, FriendInput{Username: "alice", FriendUsername: "bob"})

	var sent FriendResult
	require.True(t, lastOfType(t, drain(t, alice), EvtFriendRequestSent, &sent))
	assert.True(t, sent.Success)
	assert.Equal(t, "bob", sent.FriendUsername)

	bobEvents := drain(t, bob)
	var req NewFriendRequest
	require.True(t, lastOfType(t, bobEvents, EvtNewFriendRequest, &req))
	assert.Equal(t, "alice", req.From)
	var pending []string
	require.True(t, lastOfType(t, bobEvents, EvtPendingFriendRequests, &pending))
	assert.Equal(t, []string{"alice"}, pending)

	send(t, d, "c2", CmdAcceptFriendRequest, FriendInput{Username: "bob", FriendUsername: "alice"})

	bobEvents = drain(t, bob)
	var added FriendResult
	require.True(t, lastOfType(t, bobEvents, EvtFriendAdded, &added))
	assert.True(t, added.Success)
	assert.Equal(t, "alice", added.FriendUsername)
	var bobFriends []string
	require.True(t, lastOfType(t, bobEvents, EvtFriendList, &bobFriends))
	assert.Equal(t, []string{"alice"}, bobFriends)
	require.True(t, lastOfType(t, bobEvents, EvtPendingFriendRequests, &pending))
	assert.Empty(t, pending)

	aliceEvents := drain(t, alice)
	require.True(t, lastOfType(t, aliceEvents, EvtFriendAdded, &added))
	assert.Equal(t, "bob", added.FriendUsername)
	var aliceFriends []string
	require.True(t, lastOfType(t, aliceEvents, EvtFriendList, &aliceFriends))
	assert.Equal(t, []string{"bob"}, aliceFriends)
}

func TestDuplicateFriendRequestReportsFailure(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	register(t, d, h, "c2", "bob")

	send(t, d, "c1", CmdAddFriend, FriendInput{FriendUsername: "bob"})
	drain(t, alice)
	send(t, d, "c1", CmdAddFriend, FriendInput{FriendUsername: "bob"})

	var sent FriendResult
	require.True(t, lastOfType(t, drain(t, alice), EvtFriendRequestSent, &sent))
	assert.False(t, sent.Success)
}

func TestCrossedRequestsAutoAccept(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	bob := register(t, d, h, "c2", "bob")
	drain(t, alice)
	drain(t, bob)

	send(t, d, "c1", CmdAddFriend, FriendInput{FriendUsername: "bob"})
	send(t, d, "c2", CmdAddFriend, FriendInput{FriendUsername: "alice"})

	var added FriendResult
	bobEvents := drain(t, bob)
	require.True(t, lastOfType(t, bobEvents, EvtFriendAdded, &added))
	assert.Equal(t, "alice", added.FriendUsername)
	var pending []string
	require.True(t, lastOfType(t, bobEvents, EvtPendingFriendRequests, &pending))
	assert.Empty(t, pending, "no leftover pending entry after auto-accept")

	require.True(t, lastOfType(t, drain(t, alice), EvtFriendAdded, &added))
	assert.Equal(t, "bob", added.FriendUsername)
}

func TestRejectFriendRequest(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	bob := register(t, d, h, "c2", "bob")

	send(t, d, "c1", CmdAddFriend, FriendInput{FriendUsername: "bob"})
	drain(t, alice)
	drain(t, bob)

	send(t, d, "c2", CmdRejectFriendRequest, FriendInput{FriendUsername: "alice"})

	bobEvents := drain(t, bob)
	var rejected FriendResult
	require.True(t, lastOfType(t, bobEvents, EvtFriendRequestRejected, &rejected))
	assert.True(t, rejected.Success)
	assert.Equal(t, "alice", rejected.FriendUsername)
	var pending []string
	require.True(t, lastOfType(t, bobEvents, EvtPendingFriendRequests, &pending))
	assert.Empty(t, pending)

	require.True(t, lastOfType(t, drain(t, alice), EvtFriendRequestRejected, &rejected))
	assert.Equal(t, "bob", rejected.FriendUsername)
	assert.NotEmpty(t, rejected.Message)
}

func TestRemoveFriendRefreshesBothLists(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	bob := register(t, d, h, "c2", "bob")

	send(t, d, "c1", CmdAddFriend, FriendInput{FriendUsername: "bob"})
	send(t, d, "c2", CmdAcceptFriendRequest, FriendInput{FriendUsername: "alice"})
	drain(t, alice)
	drain(t, bob)

	send(t, d, "c1", CmdRemoveFriend, FriendInput{FriendUsername: "bob"})

	var removed FriendResult
	aliceEvents := drain(t, alice)
	require.True(t, lastOfType(t, aliceEvents, EvtFriendRemoved, &removed))
	assert.Equal(t, "bob", removed.FriendUsername)
	var friends []string
	require.True(t, lastOfType(t, aliceEvents, EvtFriendList, &friends))
	assert.Empty(t, friends)

	bobEvents := drain(t, bob)
	require.True(t, lastOfType(t, bobEvents, EvtFriendRemoved, &removed))
	require.True(t, lastOfType(t, bobEvents, EvtFriendList, &friends))
	assert.Empty(t, friends)
}

func TestSendMessageEchoAndDelivery(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	bob := register(t, d, h, "c2", "bob")
	drain(t, alice)
	drain(t, bob)

	send(t, d, "c1", CmdSendMessage, SendMessageInput{From: "alice", To: "bob", Text: "hi"})

	var echo MessageSentResponse
	require.True(t, lastOfType(t, drain(t, alice), EvtMessageSent, &echo))
	assert.True(t, echo.Success)
	assert.Equal(t, "alice", echo.Message.Sender)
	assert.Equal(t, "bob", echo.Message.To)
	assert.Equal(t, "hi", echo.Message.Text)
	assert.Equal(t, "alice.png", echo.Message.Avatar)
	assert.NotZero(t, echo.Message.Timestamp)

	var incoming NewMessage
	require.True(t, lastOfType(t, drain(t, bob), EvtNewMessage, &incoming))
	assert.Equal(t, "alice", incoming.From)
	assert.Equal(t, "hi", incoming.Text)
	assert.Equal(t, "alice.png", incoming.Avatar)
}

func TestOfflineRecipientCatchesUpFromHistory(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")

	// bob has never registered; the message is persisted, not delivered.
	send(t, d, "c1", CmdSendMessage, SendMessageInput{From: "alice", To: "bob", Text: "hi"})
	var echo MessageSentResponse
	require.True(t, lastOfType(t, drain(t, alice), EvtMessageSent, &echo))
	require.True(t, echo.Success)

	bob := connect(h, "c2")
	send(t, d, "c2", CmdRegister, RegisterInput{Username: "bob", ProfilePic: "bob.png"})

	var history map[string][]models.Message
	require.True(t, lastOfType(t, drain(t, bob), EvtLoadConversations, &history))
	require.Contains(t, history, "alice")
	require.Len(t, history["alice"], 1)
	assert.Equal(t, "alice", history["alice"][0].Sender)
	assert.Equal(t, "hi", history["alice"][0].Text)
}

func TestDisconnectBroadcastsRoster(t *testing.T) {
	d, h := newTestDispatcher(t)
	alice := register(t, d, h, "c1", "alice")
	register(t, d, h, "c2", "bob")
	drain(t, alice)

	d.Disconnect("c2")

	var roster []hub.Session
	require.True(t, lastOfType(t, drain(t, alice), EvtUserList, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Username)
}

func TestCommandsFromUnregisteredConnectionAreIgnored(t *testing.T) {
	d, h := newTestDispatcher(t)
	client := connect(h, "c1")

	send(t, d, "c1", CmdAddFriend, FriendInput{FriendUsername: "bob"})
	send(t, d, "c1", CmdSendMessage, SendMessageInput{To: "bob", Text: "hi"})

	assert.Empty(t, drain(t, client))
}
