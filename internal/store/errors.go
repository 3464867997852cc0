package store

import "errors"

var (
	// ErrNameTaken is returned when a registration collides with an existing
	// username (live session, known user, or persisted record).
	ErrNameTaken = errors.New("username already taken")

	// ErrAlreadyRelated is returned when a friend request targets a user who
	// is already a friend or already has a pending request from the sender.
	ErrAlreadyRelated = errors.New("request already sent or already friends")

	// ErrNoPendingRequest is returned when accepting or rejecting a request
	// that does not exist.
	ErrNoPendingRequest = errors.New("no pending friend request")
)
