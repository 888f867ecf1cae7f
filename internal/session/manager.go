package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

const outboxSize = 64

func (s *Session) handleConnect(c connectCmd) {
	cred := c.cred
	if c.reconnect {
		cred = s.cred
	}
	if cred == "" {
		c.reply <- connectResult{err: &ConnectError{Kind: MissingCredential}}
		return
	}

	s.stopTimer()
	s.cancelDial(ErrSuperseded)
	s.dropConn()
	s.bo = s.opts.Reconnect.newBackOff()
	s.attempt = 0
	s.lastErr = nil

	if c.reconnect {
		// the immediate attempt counts against the fresh budget
		s.bo.NextBackOff()
		s.attempt = 1
		s.dialMode = dialManual
	} else {
		s.cred = cred
		s.resetDomain()
		s.dialMode = dialConnect
	}

	s.state = Connecting
	s.waiters = append(s.waiters, c.reply)
	s.emit(StatusEvent{Kind: KindConnecting})
	s.startDial()
}

func (s *Session) handleDisconnect() {
	s.stopTimer()
	s.cancelDial(ErrDisconnected)
	s.closeConn()
	s.disp.UnregisterAll()
	s.tracker.Clear()
	s.resetDomain()
	s.attempt = 0
	if s.state == Disconnected {
		return
	}
	s.state = Disconnected
	s.emit(StatusEvent{Kind: KindDisconnect})
}

func (s *Session) startDial() {
	s.dialGen++
	gen, cred := s.dialGen, s.cred
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
	s.dialCancel = cancel

	go func() {
		defer cancel()
		conn, ack, err := s.dial(ctx, cred)
		s.post(dialResult{gen: gen, conn: conn, ack: ack, err: err})
	}()
}

// dial opens a connection and waits for the server's connect frame.
func (s *Session) dial(ctx context.Context, cred string) (transport.Conn, protocol.ConnectAck, error) {
	var ack protocol.ConnectAck
	conn, err := s.opts.Dialer.Dial(ctx, cred)
	if err != nil {
		return nil, ack, err
	}
	env, err := conn.Read(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, ack, err
	}

	switch env.Event {
	case protocol.EvtConnect:
		if err := env.Decode(&ack); err != nil {
			_ = conn.Close()
			return nil, ack, err
		}
		return conn, ack, nil
	case protocol.EvtError:
		_ = conn.Close()
		var p protocol.ErrorPayload
		if err := env.Decode(&p); err != nil {
			return nil, ack, err
		}
		if p.Code == protocol.CodeUnauthorized {
			return nil, ack, fmt.Errorf("%w: %s", transport.ErrAuthRejected, p.Message)
		}
		return nil, ack, errors.New(p.Message)
	default:
		_ = conn.Close()
		return nil, ack, fmt.Errorf("unexpected first frame %q", env.Event)
	}
}

func classify(err error) *ConnectError {
	var ce *ConnectError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, transport.ErrAuthRejected):
		return &ConnectError{Kind: AuthRejected, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnectError{Kind: Timeout, Err: err}
	default:
		return &ConnectError{Kind: TransportError, Err: err}
	}
}

func (s *Session) handleDialResult(r dialResult) {
	if r.gen != s.dialGen || s.dialCancel == nil {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		s.log.Debug("stale dial result dropped", zap.Uint64("gen", r.gen))
		return
	}
	s.dialCancel = nil

	if r.err != nil {
		cerr := classify(r.err)
		s.lastErr = cerr
		s.failWaiters(cerr)

		if s.dialMode == dialConnect {
			s.state = Disconnected
			s.emit(StatusEvent{Kind: KindError, Err: cerr})
			if cerr.Kind == AuthRejected {
				s.emit(StatusEvent{Kind: KindUnauthorized, Err: cerr})
			}
			return
		}

		s.state = Reconnecting
		s.emit(StatusEvent{Kind: KindReconnectError, Err: cerr})
		if cerr.Kind == AuthRejected {
			s.emit(StatusEvent{Kind: KindUnauthorized, Err: cerr})
			s.fail(cerr)
			return
		}
		s.scheduleRetry()
		return
	}

	s.epoch++
	epoch := s.epoch
	s.conn = r.conn
	s.selfID, s.selfName = r.ack.UserID, r.ack.Username
	connCtx, cancel := context.WithCancel(s.ctx)
	s.connCancel = cancel
	s.outbox = make(chan protocol.Envelope, outboxSize)
	go s.readLoop(connCtx, r.conn, epoch)
	go s.writeLoop(connCtx, r.conn, epoch, s.outbox)

	s.disp.UnregisterAll()
	s.disp.SetEpoch(epoch)
	s.registerHandlers()

	kind := KindConnect
	if s.dialMode != dialConnect {
		kind = KindReconnect
	}
	s.state = Connected
	s.lastErr = nil
	s.emit(StatusEvent{Kind: kind})
	s.attempt = 0
	s.bo.Reset()

	for _, w := range s.waiters {
		w <- connectResult{epoch: epoch}
	}
	s.waiters = nil

	s.resume()
}

// resume rejoins the channels held before an automatic or manual reconnect.
func (s *Session) resume() {
	if s.wantLobby {
		if frames, err := s.tracker.JoinLobby(true, s.epoch); err == nil {
			s.writeAll(frames)
		}
	}
	if s.wantRoom != "" {
		if frames, _, err := s.tracker.JoinRoom(true, s.epoch, s.wantRoom); err == nil {
			s.writeAll(frames)
		}
	}
}

func (s *Session) handleConnLost(l connLost) {
	if l.epoch != s.epoch || s.conn == nil {
		return
	}
	s.log.Warn("connection lost", zap.Uint64("epoch", l.epoch), zap.Error(l.err))
	s.dropConn()
	s.lastErr = l.err
	s.state = Reconnecting
	s.emit(StatusEvent{Kind: KindDisconnect, Err: l.err})

	s.bo = s.opts.Reconnect.newBackOff()
	s.attempt = 0
	s.scheduleRetry()
}

func (s *Session) scheduleRetry() {
	d := s.bo.NextBackOff()
	if d == backoff.Stop {
		s.fail(ErrRetriesExhausted)
		return
	}
	s.attempt++
	s.timerGen++
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() { s.post(retryFire{gen: gen}) })
}

func (s *Session) handleRetry(f retryFire) {
	if f.gen != s.timerGen || s.state != Reconnecting {
		return
	}
	s.timer = nil
	s.dialMode = dialRetry
	s.emit(StatusEvent{Kind: KindReconnectAttempt})
	s.startDial()
}

// fail is terminal: nothing retries until Connect or Reconnect.
func (s *Session) fail(err error) {
	s.stopTimer()
	s.cancelDial(err)
	s.tracker.Clear()
	s.resetDomain()
	s.lastErr = err
	s.state = Failed
	s.emit(StatusEvent{Kind: KindReconnectFailed, Err: err})
}

// dropConn ends the live connection without leave requests. Cached room
// and chat state is kept for the resume; presence is not.
func (s *Session) dropConn() {
	if s.conn == nil {
		return
	}
	s.closeConn()
	s.disp.UnregisterAll()
	s.tracker.Clear()
	if s.presence != nil {
		s.presence.Clear()
	}
}

func (s *Session) closeConn() {
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.outbox = nil
}

func (s *Session) cancelDial(err error) {
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
		s.dialGen++
	}
	s.failWaiters(&ConnectError{Kind: TransportError, Err: err})
}

func (s *Session) failWaiters(err error) {
	for _, w := range s.waiters {
		w <- connectResult{err: err}
	}
	s.waiters = nil
}

func (s *Session) stopTimer() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) readLoop(ctx context.Context, conn transport.Conn, epoch uint64) {
	for {
		env, err := conn.Read(ctx)
		if err != nil {
			s.post(connLost{epoch: epoch, err: err})
			return
		}
		s.post(inbound{epoch: epoch, env: env})
	}
}

func (s *Session) writeLoop(ctx context.Context, conn transport.Conn, epoch uint64, out <-chan protocol.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-out:
			if err := conn.Write(ctx, env); err != nil {
				s.post(connLost{epoch: epoch, err: err})
				return
			}
		}
	}
}

// write queues env on the live connection.
func (s *Session) write(env protocol.Envelope) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	select {
	case s.outbox <- env:
		return nil
	default:
		return fmt.Errorf("send %s: outbound queue full", env.Event)
	}
}

func (s *Session) writeAll(frames []protocol.Envelope) error {
	for _, env := range frames {
		if err := s.write(env); err != nil {
			return err
		}
	}
	return nil
}
