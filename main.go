package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"securechat/config"
)

var version = "dev"

func main() {
	a := &app{}

	cmd := &cli.Command{
		Name:    "securechat",
		Usage:   "Terminal client for the SecureChat backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Sources: cli.EnvVars("SECURECHAT_CONFIG"),
				Value:   config.DefaultPath(),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				Sources: cli.EnvVars("SECURECHAT_LOG_LEVEL"),
				Value:   "warn",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(c.String("log-level")); err != nil {
				return ctx, err
			}
			if err := a.setup(c.String("config")); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			return a.teardown()
		},
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate and store the session locally",
				Action: func(ctx context.Context, c *cli.Command) error { return a.login() },
			},
			{
				Name:   "register",
				Usage:  "Create an account and log in",
				Action: func(ctx context.Context, c *cli.Command) error { return a.register() },
			},
			{
				Name:   "logout",
				Usage:  "Invalidate and clear the stored session",
				Action: func(ctx context.Context, c *cli.Command) error { return a.logout() },
			},
			{
				Name:   "whoami",
				Usage:  "Show the logged-in user",
				Action: func(ctx context.Context, c *cli.Command) error { return a.whoami() },
			},
			{
				Name:   "rooms",
				Usage:  "List conversations",
				Action: func(ctx context.Context, c *cli.Command) error { return a.rooms() },
			},
			{
				Name:   "friends",
				Usage:  "List friends",
				Action: func(ctx context.Context, c *cli.Command) error { return a.friends() },
			},
			{
				Name:      "chat",
				Usage:     "Open a conversation",
				ArgsUsage: "<room-id>",
				Action:    func(ctx context.Context, c *cli.Command) error { return a.chat(ctx, c.Args().First()) },
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return nil
}
