package chat

import (
	"github.com/tradeguard/chatsync/internal/types"
)

type joinPayload struct {
	RoomId string `json:"room_id"`
}

type sendPayload struct {
	RoomId  string            `json:"room_id"`
	Content string            `json:"content"`
	Kind    types.MessageKind `json:"kind"`
}

type newMessagePayload struct {
	RoomId  string        `json:"room_id"`
	Message types.Message `json:"message"`
}

type typingPayload struct {
	RoomId   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

type userTypingPayload struct {
	RoomId   string `json:"room_id,omitempty"`
	UserId   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type receiptPayload struct {
	MessageId string `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type userOnlinePayload struct {
	RoomId   string `json:"room_id,omitempty"`
	UserId   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}
