package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, "client-1", zerolog.Nop())
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login/", r.URL.Path)
		require.Equal(t, "client-1", r.Header.Get("X-Client-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob@example.com", body["email"])

		json.NewEncoder(w).Encode(map[string]any{
			"user":    map[string]any{"id": 5, "username": "bob", "email": "bob@example.com"},
			"access":  "access-token",
			"refresh": "refresh-token",
		})
	})

	creds, err := c.Login("bob@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, int64(5), creds.User.ID)
	assert.Equal(t, "access-token", creds.Access)
}

func TestLoginRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid credentials"})
	})

	_, err := c.Login("bob@example.com", "wrong")
	require.ErrorIs(t, err, ErrRequest)
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestBearerTokenAttached(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": 5, "username": "bob"})
	})
	c.SetToken("tok")

	user, err := c.Profile()
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
}

func TestUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Rooms()
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRooms(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/rooms/", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": 7,
				"participants": []map[string]any{
					{"id": 1, "username": "alice"},
					{"id": 5, "username": "bob"},
				},
				"unread_count": 3,
				"last_message": map[string]any{
					"id":                10,
					"encrypted_content": "hello",
					"sender_username":   "bob",
					"timestamp":         "2024-01-01T00:00:00Z",
				},
			},
		})
	})

	rooms, err := c.Rooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(7), rooms[0].ID)
	assert.Equal(t, 3, rooms[0].UnreadCount)
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "hello", rooms[0].LastMessage.Content)
	assert.Equal(t, "bob", rooms[0].Other(1).Username)
}

func TestFriends(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/friends/", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "friend": map[string]any{"id": 5, "username": "bob", "is_online": true}},
		})
	})

	friends, err := c.Friends()
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "bob", friends[0].Friend.Username)
	assert.True(t, friends[0].Friend.IsOnline)
}

func TestSearchUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/search/", r.URL.Path)
		require.Equal(t, "bo b", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": 5, "username": "bob"}},
		})
	})

	users, err := c.SearchUsers("bo b")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
}

func TestCreateRoom(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/rooms/create/", r.URL.Path)
		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(5), body["participant_id"])
		json.NewEncoder(w).Encode(map[string]any{"id": 9})
	})

	room, err := c.CreateRoom(5)
	require.NoError(t, err)
	assert.Equal(t, int64(9), room.ID)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 5,
		"exp":     exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	assert.False(t, TokenExpired(signedToken(t, now.Add(time.Hour)), now))
	assert.True(t, TokenExpired(signedToken(t, now.Add(-time.Hour)), now))

	// garbage is treated as expired
	assert.True(t, TokenExpired("not-a-jwt", now))
}

func TestTokenWithoutExp(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 5})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)

	assert.False(t, TokenExpired(s, time.Now()))
}
