package handler

import "encoding/json"

// Inbound command kinds.
const (
	CmdRegister            = "register"
	CmdAddFriend           = "addFriend"
	CmdAcceptFriendRequest = "acceptFriendRequest"
	CmdRejectFriendRequest = "rejectFriendRequest"
	CmdRemoveFriend        = "removeFriend"
	CmdSendMessage         = "sendMessage"
)

// Outbound event kinds.
const (
	EvtRegisterResponse      = "registerResponse"
	EvtUserList              = "userList"
	EvtFriendList            = "friendList"
	EvtPendingFriendRequests = "pendingFriendRequests"
	EvtLoadConversations     = "loadConversations"
	EvtFriendRequestSent     = "friendRequestSent"
	EvtNewFriendRequest      = "newFriendRequest"
	EvtFriendAdded           = "friendAdded"
	EvtFriendRequestRejected = "friendRequestRejected"
	EvtFriendRemoved         = "friendRemoved"
	EvtMessageSent           = "messageSent"
	EvtNewMessage            = "newMessage"
)

// Command is the envelope every client message arrives in.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// region --- Inbound payloads ---

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

// FriendInput carries every friendship command: add, accept, reject, remove.
type FriendInput struct {
	Username       string `json:"username"`
	FriendUsername string `json:"friendUsername"`
}

// SendMessageInput carries a chat message from a client.
type SendMessageInput struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// endregion

// region --- Outbound payloads ---

// RegisterResponse reports whether a registration succeeded.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FriendResult is the shared result payload for friendship notifications.
type FriendResult struct {
	Success        bool   `json:"success"`
	FriendUsername string `json:"friendUsername"`
	Message        string `json:"message,omitempty"`
}

// NewFriendRequest notifies a user of an incoming request.
type NewFriendRequest struct {
	From string `json:"from"`
}

// SentMessage echoes a stored message back to its sender.
type SentMessage struct {
	Sender    string `json:"sender"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Avatar    string `json:"avatar"`
}

// MessageSentResponse confirms delivery of a message to the sender.
type MessageSentResponse struct {
	Success bool        `json:"success"`
	Message SentMessage `json:"message"`
}

// NewMessage notifies a live recipient of an incoming message.
type NewMessage struct {
	From   string `json:"from"`
	Text   string `json:"text"`
	Avatar string `json:"avatar"`
}

// endregion
