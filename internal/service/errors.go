package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyConnected   = errors.New("user already connected")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrSecretMismatch     = errors.New("secret confirmation does not match")

	ErrRoomNotFound  = errors.New("room not found")
	ErrNameTaken     = errors.New("room name already exists")
	ErrRoomShutdown  = errors.New("room is shut down")
	ErrNotAdmin      = errors.New("only the room admin may do that")
	ErrNotMember     = errors.New("not a member of that room")
	ErrNoSuchRequest = errors.New("no pending request for that user")

	ErrUserNotFound = errors.New("user not found")
)
