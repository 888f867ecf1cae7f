// Package config loads client and dev server settings from the environment.
// A .env file in the working directory is read first when present; real
// environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/lol-lobby-client/internal/session"
)

type Client struct {
	ServerURL string `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	WSPath    string `env:"WS_PATH" envDefault:"/ws"`
	APIPrefix string `env:"API_PREFIX" envDefault:"/api/v1"`
	Token     string `env:"TOKEN"`
	TokenFile string `env:"TOKEN_FILE"`

	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	Reconnect      Reconnect     `envPrefix:"RECONNECT_"`

	Production bool   `env:"PRODUCTION"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

type Reconnect struct {
	Backoff     string        `env:"BACKOFF" envDefault:"fixed"`
	Delay       time.Duration `env:"DELAY" envDefault:"1s"`
	MaxDelay    time.Duration `env:"MAX_DELAY" envDefault:"30s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
}

type Server struct {
	Addr        string        `env:"ADDR" envDefault:":8080"`
	JWTSecret   string        `env:"JWT_SECRET" envDefault:"dev-secret"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"2h"`
	DatabaseURL string        `env:"DATABASE_URL"`
	Production  bool          `env:"PRODUCTION"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
}

const prefix = "LOBBY_"

// LoadClient reads the client settings.
func LoadClient() (Client, error) {
	loadDotEnv()
	var c Client
	if err := env.ParseWithOptions(&c, env.Options{Prefix: prefix}); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Client{}, err
	}
	return c, nil
}

// LoadServer reads the dev server settings.
func LoadServer() (Server, error) {
	loadDotEnv()
	var s Server
	if err := env.ParseWithOptions(&s, env.Options{Prefix: prefix}); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if s.JWTSecret == "" {
		return Server{}, errors.New("config: LOBBY_JWT_SECRET is empty")
	}
	return s, nil
}

func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

func (c Client) validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid LOBBY_SERVER_URL %q", c.ServerURL)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("config: LOBBY_SERVER_URL must be http or https, got %q", u.Scheme)
	}
	switch session.BackoffKind(c.Reconnect.Backoff) {
	case session.BackoffFixed, session.BackoffExponential:
	default:
		return fmt.Errorf("config: unknown reconnect backoff %q", c.Reconnect.Backoff)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("config: reconnect attempts must not be negative")
	}
	return nil
}

// APIURL is the REST base including the version prefix.
func (c Client) APIURL() string {
	return strings.TrimRight(c.ServerURL, "/") + c.APIPrefix
}

// WSURL is the realtime endpoint with the scheme switched to ws or wss.
func (c Client) WSURL() string {
	base := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.WSPath
}

func (c Client) ReconnectPolicy() session.ReconnectPolicy {
	return session.ReconnectPolicy{
		Kind:        session.BackoffKind(c.Reconnect.Backoff),
		Delay:       c.Reconnect.Delay,
		MaxDelay:    c.Reconnect.MaxDelay,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}
