// Package api is the REST client for the lobby server. Every response is a
// {status, data, message} envelope; Client unwraps data into the caller's
// type and turns failures into *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

// ErrUnauthorized is matched by every error caused by an HTTP 401. The
// owner should re-authenticate or log out.
var ErrUnauthorized = errors.New("api: unauthorized")

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the normalized response body.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Error is a non-success response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("api: http %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// TokenSource returns the bearer token for the next request. An empty token
// sends no Authorization header.
type TokenSource func() string

type Client struct {
	base  *url.URL
	http  *http.Client
	token TokenSource
	log   *zap.Logger
	// OnUnauthorized is called after every 401, before the error returns.
	OnUnauthorized func()
}

func New(baseURL string, timeout time.Duration, token TokenSource, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		base:  u,
		http:  &http.Client{Timeout: timeout},
		token: token,
		log:   log.Named("api"),
	}, nil
}

// WithToken returns a copy of c that always sends token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = func() string { return token }
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	var env Envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && c.OnUnauthorized != nil {
		c.OnUnauthorized()
	}
	if resp.StatusCode >= 300 || env.Status == StatusError {
		return &Error{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

type LoginResult struct {
	Token string        `json:"token"`
	User  protocol.User `json:"user"`
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", creds, &out)
	return out, err
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (protocol.User, error) {
	var out protocol.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

// RoomSummary is one row of the room list.
type RoomSummary struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	OwnerID     string              `json:"ownerId"`
	Status      protocol.RoomStatus `json:"status"`
	PlayerCount int                 `json:"playerCount"`
	Capacity    int                 `json:"capacity"`
}

func (c *Client) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	var out []RoomSummary
	err := c.do(ctx, http.MethodGet, "/rooms", nil, &out)
	return out, err
}

type CreateRoom struct {
	Name     string                `json:"name"`
	Settings protocol.RoomSettings `json:"settings"`
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoom) (protocol.RoomSnapshot, error) {
	var out protocol.RoomSnapshot
	err := c.do(ctx, http.MethodPost, "/rooms", req, &out)
	return out, err
}

func (c *Client) RoomDetail(ctx context.Context, roomID string) (protocol.RoomSnapshot, error) {
	var out protocol.RoomSnapshot
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &out)
	return out, err
}

func (c *Client) KickPlayer(ctx context.Context, roomID, userID string) error {
	body := struct {
		UserID string `json:"userId"`
	}{userID}
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/kick", body, nil)
}

func (c *Client) StartGame(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/start", nil, nil)
}

func (c *Client) UpdateRoomSettings(ctx context.Context, roomID string, s protocol.RoomSettings) (protocol.RoomSnapshot, error) {
	var out protocol.RoomSnapshot
	err := c.do(ctx, http.MethodPut, "/rooms/"+url.PathEscape(roomID)+"/settings", s, &out)
	return out, err
}

// HistoryQuery selects a page of chat history. A zero Before starts from the
// newest message; a zero Limit leaves the page size to the server.
type HistoryQuery struct {
	Before time.Time
	Limit  int
}

func (q HistoryQuery) encode() string {
	v := url.Values{}
	if !q.Before.IsZero() {
		v.Set("before", q.Before.UTC().Format(time.RFC3339Nano))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// RoomMessages returns a page of a room's history, oldest first.
func (c *Client) RoomMessages(ctx context.Context, roomID string, q HistoryQuery) ([]protocol.Message, error) {
	var out []protocol.Message
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages"+q.encode(), nil, &out)
	return out, err
}

func (c *Client) PostRoomMessage(ctx context.Context, roomID string, m protocol.SendMessage) (protocol.Message, error) {
	var out protocol.Message
	err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", m, &out)
	return out, err
}

func (c *Client) LobbyMessages(ctx context.Context, q HistoryQuery) ([]protocol.Message, error) {
	var out []protocol.Message
	err := c.do(ctx, http.MethodGet, "/lobby/chat"+q.encode(), nil, &out)
	return out, err
}

func (c *Client) PostLobbyMessage(ctx context.Context, m protocol.SendMessage) (protocol.Message, error) {
	var out protocol.Message
	err := c.do(ctx, http.MethodPost, "/lobby/chat", m, &out)
	return out, err
}
