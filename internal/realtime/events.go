package realtime

import (
	"encoding/json"
	"time"
)

// Client -> server events.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// Server -> client events.
const (
	EventJoinedRoom  = "joined-room"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
	EventNewMessage  = "new-message"
	EventMessageSent = "message-sent"
	EventUserTyping  = "user-typing"
	EventOnlineUsers = "online-users"
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"
	EventError       = "error"
)

// Envelope is the frame read from a client. Data is decoded per event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is the frame written to a client.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID    string    `json:"roomId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type UserPayload struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	RoomID    string    `json:"roomId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func errorMessage(text string) Message {
	return Message{Event: EventError, Data: ErrorPayload{Message: text}}
}
