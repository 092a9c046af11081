package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChatMessage(t *testing.T) {
	frame := []byte(`{"type":"chat_message","message_id":1,"content":"hi","sender_id":5,"sender_username":"bob","timestamp":"2024-01-01T00:00:00Z"}`)

	ev, err := Decode(frame)
	require.NoError(t, err)

	msg, ok := ev.(ChatMessageReceived)
	require.True(t, ok, "expected ChatMessageReceived, got %T", ev)
	assert.Equal(t, int64(1), msg.MessageID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, int64(5), msg.SenderID)
	assert.Equal(t, "bob", msg.SenderUsername)
	assert.Equal(t, "2024-01-01T00:00:00Z", msg.Timestamp)
}

func TestDecodeTypingIndicator(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"typing_indicator","user_id":5,"username":"bob","is_typing":true}`))
	require.NoError(t, err)

	ind, ok := ev.(TypingIndicator)
	require.True(t, ok)
	assert.Equal(t, "bob", ind.Username)
	assert.True(t, ind.IsTyping)
}

func TestDecodeUserStatusUpdate(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"user_status_update","user_id":42,"username":"bob","is_online":false}`))
	require.NoError(t, err)

	upd, ok := ev.(UserStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, int64(42), upd.UserID)
	assert.False(t, upd.IsOnline)
}

func TestDecodeNotification(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"notification","title":"Friend request","message":"bob added you"}`))
	require.NoError(t, err)

	n, ok := ev.(Notification)
	require.True(t, ok)
	assert.Equal(t, "Friend request", n.Title)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"server_maintenance","at":"soon"}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{"", "not json", `{"content":"no type"}`, `[1,2,3]`} {
		_, err := Decode([]byte(frame))
		require.Error(t, err, "frame %q", frame)
		require.NotErrorIs(t, err, ErrUnknownEvent, "frame %q", frame)
	}
}

func TestEncodeChatMessage(t *testing.T) {
	data, err := Encode(ChatMessage{Content: "hi"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"type": "chat_message", "content": "hi"}, got)
}

func TestEncodeTyping(t *testing.T) {
	data, err := Encode(Typing{IsTyping: true})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"type": "typing", "is_typing": true}, got)
}

func TestEncodeReadMessage(t *testing.T) {
	data, err := Encode(ReadMessage{MessageID: 7})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{"type": "read_message", "message_id": float64(7)}, got)
}
