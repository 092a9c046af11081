package models

import "time"

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	IsOnline bool   `json:"is_online,omitempty"`
}

type Room struct {
	ID           int64        `json:"id"`
	Participants []User       `json:"participants"`
	LastMessage  *LastMessage `json:"last_message"`
	UnreadCount  int          `json:"unread_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// LastMessage is the room-list preview of the most recent message.
type LastMessage struct {
	ID             int64     `json:"id"`
	Content        string    `json:"encrypted_content"`
	SenderUsername string    `json:"sender_username"`
	Timestamp      time.Time `json:"timestamp"`
}

type Message struct {
	ID        int64
	Sender    User
	Content   string
	Timestamp time.Time
	IsRead    bool
}

type Friendship struct {
	ID        int64     `json:"id"`
	Friend    User      `json:"friend"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant that is not the given user, for
// two-party rooms. Falls back to the first participant.
func (r Room) Other(selfID int64) User {
	for _, p := range r.Participants {
		if p.ID != selfID {
			return p
		}
	}
	if len(r.Participants) > 0 {
		return r.Participants[0]
	}
	return User{}
}
