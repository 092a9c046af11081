package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"securechat/api"
	"securechat/channel"
	"securechat/config"
	"securechat/models"
	"securechat/session"
	"securechat/store"
)

type app struct {
	cfg   *config.Config
	store *store.Store
	api   *api.Client
}

func (a *app) setup(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	a.store = st

	clientID := ""
	if sess, err := st.Load(); err == nil {
		clientID = sess.ClientID
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	a.api = api.New(cfg.APIBaseURL, cfg.HTTPTimeout, clientID, log.With().Str("component", "api").Logger())
	return nil
}

func (a *app) teardown() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func (a *app) login() error {
	email, err := prompt("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	creds, err := a.api.Login(email, password)
	if err != nil {
		return err
	}
	if err := a.saveCredentials(creds); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", creds.User.Username)
	return nil
}

func (a *app) register() error {
	username, err := prompt("Username: ")
	if err != nil {
		return err
	}
	email, err := prompt("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	creds, err := a.api.Register(username, email, password)
	if err != nil {
		return err
	}
	if err := a.saveCredentials(creds); err != nil {
		return err
	}

	fmt.Printf("Registered as %s\n", creds.User.Username)
	return nil
}

func (a *app) saveCredentials(creds *api.Credentials) error {
	clientID := uuid.NewString()
	if sess, err := a.store.Load(); err == nil && sess.ClientID != "" {
		clientID = sess.ClientID
	}
	return a.store.Save(store.Session{
		UserID:       creds.User.ID,
		Username:     creds.User.Username,
		Email:        creds.User.Email,
		AccessToken:  creds.Access,
		RefreshToken: creds.Refresh,
		ClientID:     clientID,
	})
}

func (a *app) logout() error {
	sess, err := a.store.Load()
	if err != nil {
		return err
	}
	a.api.SetToken(sess.AccessToken)
	if err := a.api.Logout(); err != nil {
		// Clear the local session regardless; the token expires on
		// its own server side.
		log.Warn().Err(err).Msg("remote logout failed")
	}
	if err := a.store.Clear(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func (a *app) whoami() error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> (id %d)\n", sess.Username, sess.Email, sess.UserID)
	return nil
}

func (a *app) rooms() error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	a.api.SetToken(sess.AccessToken)

	rooms, err := a.api.Rooms()
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}

	for _, room := range rooms {
		other := room.Other(sess.UserID)
		line := fmt.Sprintf("%4d  %s", room.ID, other.Username)
		if room.UnreadCount > 0 {
			line += fmt.Sprintf("  (%d unread)", room.UnreadCount)
		}
		if room.LastMessage != nil {
			line += "  — " + preview(room.LastMessage.Content)
		}
		fmt.Println(line)
	}
	return nil
}

func (a *app) friends() error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	a.api.SetToken(sess.AccessToken)

	friends, err := a.api.Friends()
	if err != nil {
		return err
	}
	if len(friends) == 0 {
		fmt.Println("No friends yet")
		return nil
	}

	for _, f := range friends {
		status := "offline"
		if f.Friend.IsOnline {
			status = "online"
		}
		fmt.Printf("%4d  %-20s %s\n", f.Friend.ID, f.Friend.Username, status)
	}
	return nil
}

func (a *app) chat(ctx context.Context, roomArg string) error {
	roomID, err := strconv.ParseInt(roomArg, 10, 64)
	if err != nil {
		return fmt.Errorf("room id %q: %w", roomArg, err)
	}

	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	a.api.SetToken(sess.AccessToken)

	rooms, err := a.api.Rooms()
	if err != nil {
		return err
	}
	var room *models.Room
	for i := range rooms {
		if rooms[i].ID == roomID {
			room = &rooms[i]
			break
		}
	}
	if room == nil {
		return fmt.Errorf("room %d not found", roomID)
	}

	self := models.User{ID: sess.UserID, Username: sess.Username}
	dial := session.NewDialer(channel.Options{
		WSBaseURL:    a.cfg.WSBaseURL,
		DialTimeout:  a.cfg.DialTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		Logger:       log.With().Str("component", "channel").Logger(),
	})

	done := make(chan struct{})
	mgr := session.New(dial, session.Options{
		Token:          sess.AccessToken,
		Self:           self,
		TypingDebounce: a.cfg.TypingDebounce,
		TypingExpiry:   a.cfg.TypingExpiry,
		Logger:         log.With().Str("component", "session").Logger(),
		Observer: session.Observer{
			OnMessage: func(msg models.Message) {
				fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04"), msg.Sender.Username, msg.Content)
			},
			OnTyping: func(users []string) {
				if len(users) > 0 {
					fmt.Printf("(%s typing...)\n", strings.Join(users, ", "))
				}
			},
			OnPresence: func(userID int64, online bool) {
				if online {
					fmt.Printf("(user %d is online)\n", userID)
				} else {
					fmt.Printf("(user %d went offline)\n", userID)
				}
			},
			OnNotification: func(title, message string) {
				fmt.Printf("** %s: %s\n", title, message)
			},
			OnDisconnected: func(roomID int64, err error) {
				fmt.Println("(connection lost)")
				close(done)
			},
		},
	})
	defer mgr.Close()

	if err := mgr.SelectRoom(ctx, *room); err != nil {
		return err
	}

	other := room.Other(sess.UserID)
	fmt.Printf("Chatting with %s. Type a message, /read <id> to mark read, /quit to leave.\n", other.Username)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch {
			case line == "/quit":
				return nil
			case strings.HasPrefix(line, "/read "):
				id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/read ")), 10, 64)
				if err != nil {
					fmt.Println("usage: /read <message-id>")
					continue
				}
				if err := mgr.MarkRead(id); err != nil {
					fmt.Println("error:", err)
				}
			default:
				if err := mgr.SendMessage(line); err != nil {
					if errors.Is(err, session.ErrEmptyMessage) {
						continue
					}
					fmt.Println("error:", err)
				}
			}
		}
	}
}

func (a *app) requireSession() (*store.Session, error) {
	sess, err := a.store.Load()
	if errors.Is(err, store.ErrNoSession) {
		return nil, errors.New("not logged in; run `securechat login`")
	}
	if err != nil {
		return nil, err
	}
	if api.TokenExpired(sess.AccessToken, time.Now()) {
		return nil, errors.New("session expired; run `securechat login`")
	}
	return sess, nil
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return s
}
