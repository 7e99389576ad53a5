package types

import (
	"time"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

type MessageKind string

const KindText MessageKind = "TEXT"

type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// Rank orders statuses so transitions can be kept forward-only.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

type User struct {
	Id          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        Role   `json:"role,omitempty"`
}

type Message struct {
	Id            string        `json:"id"`
	RoomId        string        `json:"room_id"`
	SenderId      string        `json:"sender_id"`
	SenderDisplay string        `json:"sender_display,omitempty"`
	SenderRole    Role          `json:"sender_role,omitempty"`
	Content       string        `json:"content"`
	Kind          MessageKind   `json:"kind"`
	Status        MessageStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at,omitempty"`
}

// Room is the conversation attached to one escrow order.
type Room struct {
	Id          string    `json:"id"`
	OrderId     string    `json:"order_id"`
	BuyerId     string    `json:"buyer_id"`
	SellerId    string    `json:"seller_id"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
