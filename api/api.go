package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"securechat/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRequest      = errors.New("request failed")
)

// Client talks to the SecureChat REST backend: the auth service and
// the room/friends directory. The realtime channel is elsewhere; this
// client only deals in request/response snapshots.
type Client struct {
	baseURL  string
	http     *http.Client
	token    string
	clientID string
	log      zerolog.Logger
}

func New(baseURL string, timeout time.Duration, clientID string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		clientID: clientID,
		log:      log,
	}
}

// SetToken sets the bearer token attached to subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Credentials is the token pair issued at login or registration.
type Credentials struct {
	User    models.User `json:"user"`
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
}

// Login authenticates with email and password. On success the access
// token is retained for subsequent calls.
func (c *Client) Login(email, password string) (*Credentials, error) {
	body := map[string]string{"email": email, "password": password}
	var creds Credentials
	if err := c.post("/auth/login/", body, &creds); err != nil {
		return nil, err
	}
	c.token = creds.Access
	return &creds, nil
}

// Register creates an account and logs in.
func (c *Client) Register(username, email, password string) (*Credentials, error) {
	body := map[string]string{
		"username":         username,
		"email":            email,
		"password":         password,
		"password_confirm": password,
	}
	var creds Credentials
	if err := c.post("/auth/register/", body, &creds); err != nil {
		return nil, err
	}
	c.token = creds.Access
	return &creds, nil
}

// Logout tells the backend to mark the user offline.
func (c *Client) Logout() error {
	return c.post("/auth/logout/", map[string]string{}, nil)
}

// Profile fetches the authenticated user.
func (c *Client) Profile() (*models.User, error) {
	var user models.User
	if err := c.get("/auth/profile/", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Rooms fetches the user's chat rooms, most recently active first.
func (c *Client) Rooms() ([]models.Room, error) {
	var rooms []models.Room
	if err := c.get("/chat/rooms/", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom creates (or returns the existing) two-party room with
// the given participant.
func (c *Client) CreateRoom(participantID int64) (*models.Room, error) {
	body := map[string]int64{"participant_id": participantID}
	var room models.Room
	if err := c.post("/chat/rooms/create/", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Friends fetches the friendship list.
func (c *Client) Friends() ([]models.Friendship, error) {
	var friends []models.Friendship
	if err := c.get("/auth/friends/", &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// SearchUsers looks up users by username or email fragment.
func (c *Client) SearchUsers(query string) ([]models.User, error) {
	var out struct {
		Results []models.User `json:"results"`
	}
	path := "/auth/search/?q=" + url.QueryEscape(query)
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, data, out)
}

func (c *Client) do(method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readDetail(resp.Body)
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Str("detail", detail).Msg("request rejected")
		if detail != "" {
			return fmt.Errorf("%s %s: %w: %s", method, path, ErrRequest, detail)
		}
		return fmt.Errorf("%s %s: %w: status %d", method, path, ErrRequest, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// readDetail pulls the backend's error message out of a rejection
// body, which is either {"detail": "..."} or a field-error map.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}

	var detail struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &detail); err == nil {
		if detail.Detail != "" {
			return detail.Detail
		}
		if detail.Error != "" {
			return detail.Error
		}
	}

	var fields map[string][]string
	if err := json.Unmarshal(data, &fields); err == nil && len(fields) > 0 {
		for _, msgs := range fields {
			if len(msgs) > 0 {
				return msgs[0]
			}
		}
	}
	return ""
}
