package chat

import "errors"

var (
	ErrEmptyContent         = errors.New("chat: empty message content")
	ErrSendInFlight         = errors.New("chat: identical send already in flight")
	ErrNotJoined            = errors.New("chat: room not joined")
	ErrSendRejected         = errors.New("chat: send rejected")
	ErrTransportUnavailable = errors.New("chat: transport unavailable")
)
