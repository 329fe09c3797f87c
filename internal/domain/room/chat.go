package room

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	errs "okeyonline/internal/errors"
)

const (
	MaxMessageLength = 500
	MessageTypeText  = "text"
)

type ChatMessage struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"userId" bson:"user_id"`
	Username  string    `json:"username" bson:"username"`
	RoomID    string    `json:"roomId" bson:"room_id"`
	Message   string    `json:"message" bson:"message"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Type      string    `json:"type" bson:"type"`
}

// NewChatMessage trims text and checks the room id and length. A zero
// timestamp is replaced with now.
func NewChatMessage(id, userID, username, roomID, text string, ts, now time.Time) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if roomID == "" || text == "" {
		return ChatMessage{}, fmt.Errorf("%w: roomId and message are required", errs.ErrValidation)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return ChatMessage{}, fmt.Errorf("%w: message must be at most %d characters", errs.ErrValidation, MaxMessageLength)
	}
	if ts.IsZero() {
		ts = now
	}
	return ChatMessage{
		ID:        id,
		UserID:    userID,
		Username:  username,
		RoomID:    roomID,
		Message:   text,
		Timestamp: ts,
		Type:      MessageTypeText,
	}, nil
}
