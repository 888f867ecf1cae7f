// Command lobbyclient is a line-oriented client for the lobby server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/api"
	"github.com/DoyleJ11/lol-lobby-client/internal/auth"
	"github.com/DoyleJ11/lol-lobby-client/internal/config"
	"github.com/DoyleJ11/lol-lobby-client/internal/logging"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var (
	serverURL string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "lobbyclient",
	Short: "Realtime client for custom-game lobbies",
	Long: `lobbyclient connects to a lobby server, joins the lobby and rooms,
and chats from the terminal.

Settings come from LOBBY_* environment variables or a .env file; flags
override them. Run 'lobbyclient login <username>' once to store a token.

Without a subcommand it starts the interactive session.`,
	SilenceUsage: true,
	RunE:         runREPL,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Lobby server base URL (overrides LOBBY_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOBBY_LOG_LEVEL)")
	rootCmd.AddCommand(loginCmd, logoutCmd, roomsCmd, createCmd)
}

// env is everything a subcommand needs, built from config and flags.
type env struct {
	cfg    config.Client
	log    *zap.Logger
	tokens auth.Store
	api    *api.Client
}

func setup() (*env, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log, err := logging.New(cfg.LogLevel, cfg.Production)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log, tokens: tokenStore(cfg)}
	client, err := api.New(cfg.APIURL(), cfg.RequestTimeout, e.token, log)
	if err != nil {
		return nil, err
	}
	e.api = client
	return e, nil
}

func tokenStore(cfg config.Client) auth.Store {
	if cfg.Token != "" {
		s := &auth.MemoryStore{}
		_ = s.Save(cfg.Token)
		return s
	}
	path := cfg.TokenFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		path = filepath.Join(dir, "lobbyclient", "token")
	}
	return auth.FileStore{Path: path}
}

func (e *env) token() string {
	tok, _ := e.tokens.Load()
	return tok
}

// identity checks the stored token against the server before it is used
// for the realtime connection.
func (e *env) identity(ctx context.Context) (string, error) {
	tok, err := e.tokens.Load()
	if errors.Is(err, auth.ErrNoToken) {
		return "", fmt.Errorf("not logged in: run 'lobbyclient login <username>'")
	}
	if err != nil {
		return "", err
	}
	v := auth.NewValidator(func(ctx context.Context, token string) (protocol.User, error) {
		return e.api.WithToken(token).Me(ctx)
	}, e.cfg.RequestTimeout, e.log)
	user, err := v.Validate(ctx, tok)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) || errors.Is(err, auth.ErrExpired) {
			_ = e.tokens.Clear()
			return "", fmt.Errorf("stored token rejected, log in again: %w", err)
		}
		return "", err
	}
	e.log.Info("authenticated", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return tok, nil
}
