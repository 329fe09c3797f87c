package errors

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrUserNotFound       = errors.New("user was not found")
	ErrWrongPassword      = errors.New("wrong password")
	ErrUserExists         = errors.New("user already exists")
	ErrUnauthorized       = errors.New("access denied")
	ErrInvalidToken       = errors.New("invalid token")
	ErrForbidden          = errors.New("forbidden")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExists         = errors.New("room already exists")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("user is already in the room")
	ErrNotInRoom          = errors.New("user is not in the room")
	ErrNotEnoughPlayers   = errors.New("at least 2 players are required to start the game")
	ErrInvalidTransition  = errors.New("room status does not allow this action")
	ErrSpectatorsDisabled = errors.New("spectators are not allowed in this room")
	ErrWrongRoomPassword  = errors.New("wrong room password")
	ErrVersionConflict    = errors.New("room was modified concurrently")
	ErrLockTimeout        = errors.New("timed out waiting for room lock")
	ErrInternal           = errors.New("internal error")
)
