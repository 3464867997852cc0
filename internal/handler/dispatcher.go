package handler

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/AudricHarris/Z-Chat/internal/hub"
	"github.com/AudricHarris/Z-Chat/internal/models"
	"github.com/AudricHarris/Z-Chat/internal/store"
)

// NameTakenMessage is sent to a client whose chosen username collides with an
// existing one.
const NameTakenMessage = "This username is already taken. Please choose another one."

// Dispatcher routes inbound client commands to the stores and emits the
// resulting events through the hub. A single mutex serializes every command
// (and the snapshot capture) so each handler runs atomically against the
// shared in-memory state; persistence happens afterwards on the gateway's
// background worker.
type Dispatcher struct {
	hub    *hub.Hub
	graph  *store.Graph
	convos *store.Conversations
	gw     *store.Gateway
	mu     sync.Mutex
}

// NewDispatcher wires the dispatcher to its stores.
func NewDispatcher(h *hub.Hub, graph *store.Graph, convos *store.Conversations, gw *store.Gateway) *Dispatcher {
	return &Dispatcher{hub: h, graph: graph, convos: convos, gw: gw}
}

// Handle processes one raw inbound message from a connection.
func (d *Dispatcher) Handle(connID string, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		log.Printf("Malformed command from %s: %v", connID, err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch cmd.Type {
	case CmdRegister:
		var input RegisterInput
		if err := json.Unmarshal(cmd.Payload, &input); err != nil {
			log.Printf("Malformed %s payload from %s: %v", cmd.Type, connID, err)
			return
		}
		d.handleRegister(connID, input)
	case CmdAddFriend:
		d.withFriendInput(connID, cmd, d.handleAddFriend)
	case CmdAcceptFriendRequest:
		d.withFriendInput(connID, cmd, d.handleAcceptFriendRequest)
	case CmdRejectFriendRequest:
		d.withFriendInput(connID, cmd, d.handleRejectFriendRequest)
	case CmdRemoveFriend:
		d.withFriendInput(connID, cmd, d.handleRemoveFriend)
	case CmdSendMessage:
		var input SendMessageInput
		if err := json.Unmarshal(cmd.Payload, &input); err != nil {
			log.Printf("Malformed %s payload from %s: %v", cmd.Type, connID, err)
			return
		}
		d.handleSendMessage(connID, input)
	default:
		log.Printf("Unknown command type %q from %s", cmd.Type, connID)
	}
}

// Disconnect tears down a connection's session and refreshes the roster.
func (d *Dispatcher) Disconnect(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sess, bound := d.hub.Remove(connID); bound {
		log.Printf("User disconnected: %s (%s)", sess.Username, connID)
		d.hub.Broadcast(hub.Event{Type: EvtUserList, Payload: d.hub.Sessions()})
	}
}

// Snapshot captures a consistent copy of the in-memory state and hands it to
// the gateway for background serialization.
func (d *Dispatcher) Snapshot() {
	d.gw.SaveSnapshot(d.CaptureState())
}

// CaptureState returns a deep copy of the in-memory state, taken between
// commands so it is never mid-mutation. The gateway uses it for degraded-mode
// write-through.
func (d *Dispatcher) CaptureState() store.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captureState()
}

func (d *Dispatcher) captureState() store.State {
	names := d.graph.Usernames()
	users := make([]models.User, 0, len(names))
	for _, name := range names {
		users = append(users, d.graph.UserRecord(name))
	}
	return store.State{Users: users, Conversations: d.convos.Snapshot()}
}

func (d *Dispatcher) withFriendInput(connID string, cmd Command, fn func(string, FriendInput)) {
	var input FriendInput
	if err := json.Unmarshal(cmd.Payload, &input); err != nil {
		log.Printf("Malformed %s payload from %s: %v", cmd.Type, connID, err)
		return
	}
	fn(connID, input)
}

func (d *Dispatcher) handleRegister(connID string, input RegisterInput) {
	if input.Username == "" {
		d.hub.Send(connID, hub.Event{Type: EvtRegisterResponse, Payload: RegisterResponse{
			Success: false,
			Message: "A username is required.",
		}})
		return
	}

	// The username is immutable for the lifetime of the connection; a bound
	// connection cannot register again under any name.
	if sess, bound := d.hub.Session(connID); bound {
		log.Printf("Rejected re-registration from %s (already bound as %s)", connID, sess.Username)
		d.hub.Send(connID, hub.Event{Type: EvtRegisterResponse, Payload: RegisterResponse{
			Success: false,
			Message: "This connection is already registered.",
		}})
		return
	}

	// A name is taken if it is live right now (case-insensitive), already in
	// the social graph, or persisted from an earlier run.
	if d.hub.IsNameOnline(input.Username) || d.graph.KnownUser(input.Username) || d.gw.UserExists(input.Username) {
		d.hub.Send(connID, hub.Event{Type: EvtRegisterResponse, Payload: RegisterResponse{
			Success: false,
			Message: NameTakenMessage,
		}})
		return
	}

	pic := input.ProfilePic
	if pic == "" {
		pic = models.DefaultProfilePic
	}

	log.Printf("User registered: %s (%s)", input.Username, connID)
	d.hub.Bind(connID, input.Username, pic)
	d.graph.EnsureUser(input.Username, pic)

	d.hub.Send(connID, hub.Event{Type: EvtRegisterResponse, Payload: RegisterResponse{Success: true}})
	d.hub.Broadcast(hub.Event{Type: EvtUserList, Payload: d.hub.Sessions()})
	d.hub.Send(connID, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(input.Username)})
	d.hub.Send(connID, hub.Event{Type: EvtPendingFriendRequests, Payload: d.graph.Pending(input.Username)})
	d.hub.Send(connID, hub.Event{Type: EvtLoadConversations, Payload: d.convos.HistoryFor(input.Username, pic)})
}

func (d *Dispatcher) handleAddFriend(connID string, input FriendInput) {
	sess, ok := d.hub.Session(connID)
	if !ok {
		log.Printf("addFriend from unregistered connection %s", connID)
		return
	}
	username, friend := sess.Username, input.FriendUsername
	if friend == "" || friend == username {
		d.hub.Send(connID, hub.Event{Type: EvtFriendRequestSent, Payload: FriendResult{
			Success:        false,
			FriendUsername: friend,
			Message:        "Invalid friend username",
		}})
		return
	}

	outcome, err := d.graph.Propose(username, friend)
	if err != nil {
		d.hub.Send(connID, hub.Event{Type: EvtFriendRequestSent, Payload: FriendResult{
			Success:        false,
			FriendUsername: friend,
			Message:        "Request already sent or already friends",
		}})
		return
	}

	switch outcome {
	case store.ProposeAutoAccepted:
		// Both sides had asked; the pair is friends immediately.
		d.hub.Send(connID, hub.Event{Type: EvtFriendAdded, Payload: FriendResult{Success: true, FriendUsername: friend}})
		d.hub.Send(connID, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(username)})
		d.hub.Send(connID, hub.Event{Type: EvtPendingFriendRequests, Payload: d.graph.Pending(username)})
		d.hub.SendToUser(friend, hub.Event{Type: EvtFriendAdded, Payload: FriendResult{Success: true, FriendUsername: username}})
		d.hub.SendToUser(friend, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(friend)})
	case store.ProposePending:
		d.hub.Send(connID, hub.Event{Type: EvtFriendRequestSent, Payload: FriendResult{Success: true, FriendUsername: friend}})
		d.hub.SendToUser(friend, hub.Event{Type: EvtNewFriendRequest, Payload: NewFriendRequest{From: username}})
		d.hub.SendToUser(friend, hub.Event{Type: EvtPendingFriendRequests, Payload: d.graph.Pending(friend)})
	}
}

func (d *Dispatcher) handleAcceptFriendRequest(connID string, input FriendInput) {
	sess, ok := d.hub.Session(connID)
	if !ok {
		return
	}
	username, friend := sess.Username, input.FriendUsername

	if err := d.graph.Accept(username, friend); err != nil {
		// No such pending request; nothing to notify.
		return
	}

	d.hub.Send(connID, hub.Event{Type: EvtFriendAdded, Payload: FriendResult{Success: true, FriendUsername: friend}})
	d.hub.Send(connID, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(username)})
	d.hub.Send(connID, hub.Event{Type: EvtPendingFriendRequests, Payload: d.graph.Pending(username)})
	d.hub.SendToUser(friend, hub.Event{Type: EvtFriendAdded, Payload: FriendResult{Success: true, FriendUsername: username}})
	d.hub.SendToUser(friend, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(friend)})
}

func (d *Dispatcher) handleRejectFriendRequest(connID string, input FriendInput) {
	sess, ok := d.hub.Session(connID)
	if !ok {
		return
	}
	username, friend := sess.Username, input.FriendUsername

	if err := d.graph.Reject(username, friend); err != nil {
		return
	}

	d.hub.Send(connID, hub.Event{Type: EvtFriendRequestRejected, Payload: FriendResult{Success: true, FriendUsername: friend}})
	d.hub.Send(connID, hub.Event{Type: EvtPendingFriendRequests, Payload: d.graph.Pending(username)})
	d.hub.SendToUser(friend, hub.Event{Type: EvtFriendRequestRejected, Payload: FriendResult{
		Success:        true,
		FriendUsername: username,
		Message:        "Your friend request was rejected",
	}})
}

func (d *Dispatcher) handleRemoveFriend(connID string, input FriendInput) {
	sess, ok := d.hub.Session(connID)
	if !ok {
		return
	}
	username, friend := sess.Username, input.FriendUsername

	// Removal is idempotent; conversation history survives it.
	d.graph.Remove(username, friend)

	d.hub.Send(connID, hub.Event{Type: EvtFriendRemoved, Payload: FriendResult{Success: true, FriendUsername: friend}})
	d.hub.Send(connID, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(username)})
	d.hub.SendToUser(friend, hub.Event{Type: EvtFriendRemoved, Payload: FriendResult{Success: true, FriendUsername: username}})
	d.hub.SendToUser(friend, hub.Event{Type: EvtFriendList, Payload: d.graph.Friends(friend)})
}

func (d *Dispatcher) handleSendMessage(connID string, input SendMessageInput) {
	sess, ok := d.hub.Session(connID)
	if !ok {
		log.Printf("sendMessage from unregistered connection %s", connID)
		return
	}
	if input.To == "" || input.Text == "" {
		return
	}

	// Messaging is not gated on friendship status.
	msg := d.convos.Append(sess.Username, input.To, input.Text, sess.ProfilePic)

	d.hub.Send(connID, hub.Event{Type: EvtMessageSent, Payload: MessageSentResponse{
		Success: true,
		Message: SentMessage{
			Sender:    msg.Sender,
			To:        input.To,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
			Avatar:    msg.Avatar,
		},
	}})
	d.hub.SendToUser(input.To, hub.Event{Type: EvtNewMessage, Payload: NewMessage{
		From:   msg.Sender,
		Text:   msg.Text,
		Avatar: msg.Avatar,
	}})
}
