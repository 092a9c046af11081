package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types
const (
	TypeChatMessage      = "chat_message"
	TypeTyping           = "typing"
	TypeReadMessage      = "read_message"
	TypeTypingIndicator  = "typing_indicator"
	TypeUserStatusUpdate = "user_status_update"
	TypeNotification     = "notification"
)

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrUnknownEvent = errors.New("unknown event type")
)

// Event is a decoded inbound frame.
type Event interface {
	EventType() string
}

// Outbound is an event the client may transmit.
type Outbound interface {
	EventType() string
}

// ChatMessage is the outbound send-message event.
type ChatMessage struct {
	Content string `json:"content"`
}

// Typing is the outbound typing-state event.
type Typing struct {
	IsTyping bool `json:"is_typing"`
}

// ReadMessage marks a message as read on the remote side.
type ReadMessage struct {
	MessageID int64 `json:"message_id"`
}

// ChatMessageReceived is a message delivered to the room, including
// the sender's own messages echoed back by the server.
type ChatMessageReceived struct {
	MessageID      int64  `json:"message_id"`
	Content        string `json:"content"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Timestamp      string `json:"timestamp"`
}

// TypingIndicator reports another participant's typing state.
type TypingIndicator struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// UserStatusUpdate reports a user going online or offline.
type UserStatusUpdate struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

// Notification is a server-pushed informational event.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (ChatMessage) EventType() string         { return TypeChatMessage }
func (Typing) EventType() string              { return TypeTyping }
func (ReadMessage) EventType() string         { return TypeReadMessage }
func (ChatMessageReceived) EventType() string { return TypeChatMessage }
func (TypingIndicator) EventType() string     { return TypeTypingIndicator }
func (UserStatusUpdate) EventType() string    { return TypeUserStatusUpdate }
func (Notification) EventType() string        { return TypeNotification }

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its typed event. Unknown
// discriminators return ErrUnknownEvent so the caller can drop the
// frame without tearing down the connection.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	switch env.Type {
	case TypeChatMessage:
		var ev ChatMessageReceived
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return ev, nil
	case TypeTypingIndicator:
		var ev TypingIndicator
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return ev, nil
	case TypeUserStatusUpdate:
		var ev UserStatusUpdate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return ev, nil
	case TypeNotification:
		var ev Notification
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// Encode serializes an outbound event with its type discriminator.
func Encode(ev Outbound) ([]byte, error) {
	switch v := ev.(type) {
	case ChatMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			ChatMessage
		}{TypeChatMessage, v})
	case Typing:
		return json.Marshal(struct {
			Type string `json:"type"`
			Typing
		}{TypeTyping, v})
	case ReadMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			ReadMessage
		}{TypeReadMessage, v})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}
