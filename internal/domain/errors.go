package domain

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomInactive     = errors.New("room is not active")
	ErrRoomExists       = errors.New("room already exists")
	ErrUserNotWaiting   = errors.New("user not found in waiting room")
	ErrUserNotFound     = errors.New("user not found")
	ErrAlreadyMember    = errors.New("user already in room")
	ErrIdentityProvider = errors.New("identity provider unavailable")
	ErrNameEmpty        = errors.New("name empty")
	ErrNameTooLong      = errors.New("name too long")
)

// ErrorKind groups errors the way clients are expected to react to them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindInvalidState
	KindInvalidInput
	KindUpstream
)

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrRoomInactive), errors.Is(err, ErrUserNotWaiting),
		errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrRoomExists):
		return KindInvalidState
	case errors.Is(err, ErrNameEmpty), errors.Is(err, ErrNameTooLong):
		return KindInvalidInput
	case errors.Is(err, ErrIdentityProvider):
		return KindUpstream
	default:
		return KindInternal
	}
}
