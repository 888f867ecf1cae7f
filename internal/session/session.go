// Package session owns the realtime connection to the lobby server, the
// channel memberships riding on it, and the cached room, chat and presence
// state it keeps in sync.
//
// All state lives on one goroutine. Public methods send a message to its
// inbox and wait for the reply; network I/O happens on helper goroutines
// that post their results back.
package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/dispatch"
	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/reconcile"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

type sessionMsg interface{ isSessionMsg() }

type connectCmd struct {
	cred      string
	reconnect bool
	reply     chan connectResult
}

type connectResult struct {
	epoch uint64
	err   error
}

type disconnectCmd struct{ reply chan struct{} }

type credentialCmd struct{ cred string }

type lobbyCmd struct {
	leave bool
	reply chan error
}

type roomCmd struct {
	roomID string
	leave  bool
	reply  chan error
}

type sendCmd struct {
	ch      protocol.Channel
	content string
	reply   chan sendResult
}

type sendResult struct {
	msg protocol.Message
	err error
}

type readyCmd struct {
	ready bool
	reply chan error
}

type voiceCmd struct {
	enabled bool
	muted   bool
	reply   chan error
}

type viewCmd struct{ reply chan View }

type timelineCmd struct {
	ch    protocol.Channel
	reply chan []protocol.Message
}

type historyCmd struct {
	ch     protocol.Channel
	before time.Time
	reply  chan historyResult
}

type historyResult struct {
	added int
	err   error
}

type subscribeCmd struct {
	buf   int
	reply chan subscription
}

type subscription struct {
	id int
	ch chan StatusEvent
}

type unsubscribeCmd struct{ id int }

// results posted by helper goroutines

type dialResult struct {
	gen  uint64
	conn transport.Conn
	ack  protocol.ConnectAck
	err  error
}

type inbound struct {
	epoch uint64
	env   protocol.Envelope
}

type connLost struct {
	epoch uint64
	err   error
}

type retryFire struct{ gen uint64 }

type roomFetched struct {
	roomID   string
	issuedAt time.Time
	snap     protocol.RoomSnapshot
	err      error
}

type historyFetched struct {
	ch     protocol.Channel
	roomID string // empty for the lobby
	msgs   []protocol.Message
	err    error
	// reply is set for pages requested through LoadHistory.
	reply chan historyResult
}

type persisted struct {
	ch          protocol.Channel
	clientMsgID string
	msg         protocol.Message
	err         error
}

func (connectCmd) isSessionMsg()     {}
func (disconnectCmd) isSessionMsg()  {}
func (credentialCmd) isSessionMsg()  {}
func (lobbyCmd) isSessionMsg()       {}
func (roomCmd) isSessionMsg()        {}
func (sendCmd) isSessionMsg()        {}
func (readyCmd) isSessionMsg()       {}
func (voiceCmd) isSessionMsg()       {}
func (viewCmd) isSessionMsg()        {}
func (timelineCmd) isSessionMsg()    {}
func (historyCmd) isSessionMsg()     {}
func (subscribeCmd) isSessionMsg()   {}
func (unsubscribeCmd) isSessionMsg() {}
func (dialResult) isSessionMsg()     {}
func (inbound) isSessionMsg()        {}
func (connLost) isSessionMsg()       {}
func (retryFire) isSessionMsg()      {}
func (roomFetched) isSessionMsg()    {}
func (historyFetched) isSessionMsg() {}
func (persisted) isSessionMsg()      {}

// View is a copy of the session's observable state.
type View struct {
	Status      Status
	Memberships []Membership
	// Room is nil unless a room has been entered.
	Room     *protocol.RoomSnapshot
	Presence map[string]reconcile.PresenceState
}

type dialMode int

const (
	dialConnect dialMode = iota
	dialManual
	dialRetry
)

type Session struct {
	opts   Options
	log    *zap.Logger
	inbox  chan sessionMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// connection
	state    State
	epoch    uint64
	cred     string
	attempt  int
	lastErr  error
	bo       backoff.BackOff
	selfID   string
	selfName string

	conn       transport.Conn
	connCancel context.CancelFunc
	outbox     chan protocol.Envelope

	dialGen    uint64
	dialCancel context.CancelFunc
	dialMode   dialMode
	waiters    []chan connectResult

	timer    *time.Timer
	timerGen uint64

	// channels and domain state
	tracker  *Tracker
	disp     *dispatch.Dispatcher
	room     *reconcile.Room
	chat     *reconcile.Chat
	presence *reconcile.Presence
	recvAt   time.Time

	// channels to rejoin after an automatic reconnect
	wantLobby bool
	wantRoom  string

	subs    map[int]chan StatusEvent
	nextSub int
}

func New(parent context.Context, opts Options) *Session {
	opts.defaults()
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger.Named("session")
	s := &Session{
		opts:    opts,
		log:     log,
		inbox:   make(chan sessionMsg, 64),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		bo:      opts.Reconnect.newBackOff(),
		tracker: NewTracker(),
		disp:    dispatch.New(log, opts.Production),
		chat:    reconcile.NewChat(),
		subs:    make(map[int]chan StatusEvent),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			s.handle(m)
		}
	}
}

func (s *Session) handle(m sessionMsg) {
	switch msg := m.(type) {
	case connectCmd:
		s.handleConnect(msg)
	case disconnectCmd:
		s.handleDisconnect()
		msg.reply <- struct{}{}
	case credentialCmd:
		s.cred = msg.cred
	case lobbyCmd:
		msg.reply <- s.handleLobby(msg.leave)
	case roomCmd:
		msg.reply <- s.handleRoom(msg.roomID, msg.leave)
	case sendCmd:
		sent, err := s.handleSend(msg.ch, msg.content)
		msg.reply <- sendResult{msg: sent, err: err}
	case readyCmd:
		msg.reply <- s.handleReady(msg.ready)
	case voiceCmd:
		msg.reply <- s.handleVoice(msg.enabled, msg.muted)
	case viewCmd:
		msg.reply <- s.view()
	case timelineCmd:
		msg.reply <- s.chat.Messages(msg.ch)
	case historyCmd:
		if err := s.handleLoadHistory(msg); err != nil {
			msg.reply <- historyResult{err: err}
		}
	case subscribeCmd:
		s.nextSub++
		ch := make(chan StatusEvent, max(msg.buf, 1))
		s.subs[s.nextSub] = ch
		msg.reply <- subscription{id: s.nextSub, ch: ch}
	case unsubscribeCmd:
		if ch, ok := s.subs[msg.id]; ok {
			close(ch)
			delete(s.subs, msg.id)
		}
	case dialResult:
		s.handleDialResult(msg)
	case inbound:
		s.recvAt = s.opts.Now()
		s.disp.Dispatch(msg.env.Event, msg.env.Data, msg.epoch)
	case connLost:
		s.handleConnLost(msg)
	case retryFire:
		s.handleRetry(msg)
	case roomFetched:
		s.handleRoomFetched(msg)
	case historyFetched:
		s.handleHistory(msg)
	case persisted:
		s.handlePersisted(msg)
	}
}

func (s *Session) shutdown() {
	s.stopTimer()
	s.cancelDial(ErrClosed)
	s.closeConn()
	s.disp.UnregisterAll()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// post delivers a helper goroutine's result to the loop.
func (s *Session) post(m sessionMsg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Session) submit(ctx context.Context, m sessionMsg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func await[T any](ctx context.Context, s *Session, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrClosed
	}
}

// Connect opens the connection with credential and returns the new epoch.
// An existing connection is torn down first and all cached state dropped.
// The credential must already be validated against the identity endpoint.
func (s *Session) Connect(ctx context.Context, credential string) (uint64, error) {
	reply := make(chan connectResult, 1)
	if err := s.submit(ctx, connectCmd{cred: credential, reply: reply}); err != nil {
		return 0, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return 0, err
	}
	return r.epoch, r.err
}

// Reconnect resets the attempt counter and dials immediately with the last
// credential, from any state. Channels entered before the loss are rejoined.
// If the immediate attempt fails, automatic reconnection continues.
func (s *Session) Reconnect(ctx context.Context) (uint64, error) {
	reply := make(chan connectResult, 1)
	if err := s.submit(ctx, connectCmd{reconnect: true, reply: reply}); err != nil {
		return 0, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return 0, err
	}
	return r.epoch, r.err
}

// Disconnect tears the connection down and clears all per-connection state.
// It is idempotent.
func (s *Session) Disconnect() {
	reply := make(chan struct{}, 1)
	if s.submit(context.Background(), disconnectCmd{reply: reply}) != nil {
		return
	}
	_, _ = await(context.Background(), s, reply)
}

// UpdateCredential replaces the credential used by later reconnections.
func (s *Session) UpdateCredential(credential string) {
	_ = s.submit(context.Background(), credentialCmd{cred: credential})
}

func (s *Session) EnterLobby(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) sessionMsg { return lobbyCmd{reply: reply} })
}

func (s *Session) LeaveLobby(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) sessionMsg { return lobbyCmd{leave: true, reply: reply} })
}

// EnterRoom joins roomID, leaving the current room first if it differs.
func (s *Session) EnterRoom(ctx context.Context, roomID string) error {
	return s.call(ctx, func(reply chan error) sessionMsg { return roomCmd{roomID: roomID, reply: reply} })
}

func (s *Session) LeaveRoom(ctx context.Context) error {
	return s.call(ctx, func(reply chan error) sessionMsg { return roomCmd{leave: true, reply: reply} })
}

// SendMessage appends content to ch optimistically, sends it and persists it
// through the API. The returned message is the pending local entry.
func (s *Session) SendMessage(ctx context.Context, ch protocol.Channel, content string) (protocol.Message, error) {
	reply := make(chan sendResult, 1)
	if err := s.submit(ctx, sendCmd{ch: ch, content: content, reply: reply}); err != nil {
		return protocol.Message{}, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return protocol.Message{}, err
	}
	return r.msg, r.err
}

func (s *Session) SetReady(ctx context.Context, ready bool) error {
	return s.call(ctx, func(reply chan error) sessionMsg { return readyCmd{ready: ready, reply: reply} })
}

// SetVoice signals the local voice state. Muted is ignored while disabled.
func (s *Session) SetVoice(ctx context.Context, enabled, muted bool) error {
	return s.call(ctx, func(reply chan error) sessionMsg { return voiceCmd{enabled: enabled, muted: muted, reply: reply} })
}

func (s *Session) call(ctx context.Context, build func(chan error) sessionMsg) error {
	reply := make(chan error, 1)
	if err := s.submit(ctx, build(reply)); err != nil {
		return err
	}
	err, waitErr := await(ctx, s, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// View returns a copy of everything observable in one round trip.
func (s *Session) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.submit(ctx, viewCmd{reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, s, reply)
}

func (s *Session) Status(ctx context.Context) (Status, error) {
	v, err := s.View(ctx)
	return v.Status, err
}

// Room returns the cached snapshot of the entered room.
func (s *Session) Room(ctx context.Context) (protocol.RoomSnapshot, bool, error) {
	v, err := s.View(ctx)
	if err != nil || v.Room == nil {
		return protocol.RoomSnapshot{}, false, err
	}
	return *v.Room, true, nil
}

func (s *Session) Presence(ctx context.Context) (map[string]reconcile.PresenceState, error) {
	v, err := s.View(ctx)
	return v.Presence, err
}

func (s *Session) Memberships(ctx context.Context) ([]Membership, error) {
	v, err := s.View(ctx)
	return v.Memberships, err
}

// Timeline returns the messages of ch in time order.
func (s *Session) Timeline(ctx context.Context, ch protocol.Channel) ([]protocol.Message, error) {
	reply := make(chan []protocol.Message, 1)
	if err := s.submit(ctx, timelineCmd{ch: ch, reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, s, reply)
}

// LoadHistory fetches the page of ch's history older than before and merges
// it into the timeline. A zero before continues from the oldest confirmed
// message held. It returns how many messages were new to the timeline.
func (s *Session) LoadHistory(ctx context.Context, ch protocol.Channel, before time.Time) (int, error) {
	reply := make(chan historyResult, 1)
	if err := s.submit(ctx, historyCmd{ch: ch, before: before, reply: reply}); err != nil {
		return 0, err
	}
	r, err := await(ctx, s, reply)
	if err != nil {
		return 0, err
	}
	return r.added, r.err
}

// Subscribe returns a channel of status events and a func that ends the
// subscription. Subscribers that fall behind by more than buf events are
// dropped and their channel closed.
func (s *Session) Subscribe(ctx context.Context, buf int) (<-chan StatusEvent, func(), error) {
	reply := make(chan subscription, 1)
	if err := s.submit(ctx, subscribeCmd{buf: buf, reply: reply}); err != nil {
		return nil, nil, err
	}
	sub, err := await(ctx, s, reply)
	if err != nil {
		return nil, nil, err
	}
	cancel := func() { _ = s.submit(context.Background(), unsubscribeCmd{id: sub.id}) }
	return sub.ch, cancel, nil
}

// Close stops the session loop and closes the connection. Every method
// returns ErrClosed afterwards.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) view() View {
	v := View{
		Status: Status{
			State:    s.state,
			Epoch:    s.epoch,
			Attempt:  s.attempt,
			UserID:   s.selfID,
			Username: s.selfName,
			Err:      s.lastErr,
		},
		Memberships: s.tracker.Snapshot(),
	}
	if s.room != nil {
		snap := s.room.Snapshot()
		v.Room = &snap
	}
	if s.presence != nil {
		v.Presence = s.presence.View()
	}
	return v
}

func (s *Session) emit(ev StatusEvent) {
	ev.State, ev.Epoch = s.state, s.epoch
	if ev.Attempt == 0 {
		ev.Attempt = s.attempt
	}
	if ev.Err != nil {
		s.log.Warn("status", zap.String("kind", string(ev.Kind)), zap.Stringer("state", ev.State),
			zap.Uint64("epoch", ev.Epoch), zap.Int("attempt", ev.Attempt), zap.Error(ev.Err))
	} else {
		s.log.Info("status", zap.String("kind", string(ev.Kind)), zap.Stringer("state", ev.State),
			zap.Uint64("epoch", ev.Epoch), zap.Int("attempt", ev.Attempt))
	}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(s.subs, id)
		}
	}
}
