package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
	"github.com/DoyleJ11/lol-lobby-client/internal/session"
	"github.com/DoyleJ11/lol-lobby-client/internal/transport"
)

const help = `commands:
  /lobby            join the lobby channel      /unlobby          leave it
  /join <room>      enter a room                /leave            leave the room
  /ready, /unready  toggle ready                /voice on|off|mute|unmute
  /team <n> <text>  team chat                   /history [channel]
  /older [channel]  load earlier messages
  /room             show the room               /status           connection status
  /reconnect        reconnect now               /quit
anything else is sent to the room when in one, otherwise to the lobby`

func runREPL(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	tok, err := e.identity(ctx)
	if err != nil {
		return err
	}

	s := session.New(ctx, session.Options{
		Dialer:         &transport.WSDialer{URL: e.cfg.WSURL()},
		API:            e.api,
		Logger:         e.log,
		Production:     e.cfg.Production,
		ConnectTimeout: e.cfg.ConnectTimeout,
		RequestTimeout: e.cfg.RequestTimeout,
		Reconnect:      e.cfg.ReconnectPolicy(),
	})
	defer s.Close()

	out := cmd.OutOrStdout()
	events, unsubscribe, err := s.Subscribe(ctx, 32)
	if err != nil {
		return err
	}
	defer unsubscribe()

	r := &repl{s: s, out: out, seen: map[string]struct{}{}}
	go r.statusLoop(ctx, events, e)
	go r.tail(ctx)

	if _, err := s.Connect(ctx, tok); err != nil {
		return err
	}
	if err := s.EnterLobby(ctx); err != nil {
		r.printf("lobby: %v\n", err)
	}
	r.printf("%s\n", help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.exec(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

type repl struct {
	s   *session.Session
	out io.Writer

	mu sync.Mutex
	// ids of confirmed messages already shown
	seen map[string]struct{}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) statusLoop(ctx context.Context, events <-chan session.StatusEvent, e *env) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case session.KindUnauthorized:
				_ = e.tokens.Clear()
				r.printf("* session rejected, run 'lobbyclient login' again\n")
			case session.KindKicked:
				r.printf("* kicked from %s\n", ev.RoomID)
			case session.KindReconnectAttempt:
				r.printf("* reconnecting (attempt %d)\n", ev.Attempt)
			case session.KindError, session.KindReconnectError, session.KindReconnectFailed:
				r.printf("* %s: %v\n", ev.Kind, ev.Err)
			default:
				e.log.Debug("status", zap.String("kind", string(ev.Kind)), zap.Stringer("state", ev.State), zap.Uint64("epoch", ev.Epoch))
			}
		}
	}
}

// tail prints timeline entries that appeared since the last tick.
func (r *repl) tail(ctx context.Context) {
	t := time.NewTicker(300 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		chans := []protocol.Channel{protocol.ChannelLobby}
		if room, ok, err := r.s.Room(ctx); err == nil && ok {
			chans = append(chans, protocol.ChannelPublic)
			if self, err := r.s.Status(ctx); err == nil {
				if p, ok := room.Player(self.UserID); ok && p.TeamID > 0 {
					chans = append(chans, protocol.TeamChannel(p.TeamID))
				}
			}
		}
		for _, ch := range chans {
			msgs, err := r.s.Timeline(ctx, ch)
			if err != nil {
				continue
			}
			r.mu.Lock()
			for _, m := range msgs {
				if _, ok := r.seen[m.ID]; ok || m.Pending {
					continue
				}
				r.seen[m.ID] = struct{}{}
				fmt.Fprintf(r.out, "[%s] %s: %s\n", ch, m.Username, m.Content)
			}
			r.mu.Unlock()
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) (quit bool) {
	if line == "" {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s\n", help)
	case "/lobby":
		err = r.s.EnterLobby(ctx)
	case "/unlobby":
		err = r.s.LeaveLobby(ctx)
	case "/join":
		if arg == "" {
			err = errors.New("usage: /join <room>")
			break
		}
		err = r.s.EnterRoom(ctx, strings.ToUpper(arg))
	case "/leave":
		err = r.s.LeaveRoom(ctx)
	case "/ready":
		err = r.s.SetReady(ctx, true)
	case "/unready":
		err = r.s.SetReady(ctx, false)
	case "/voice":
		err = r.voice(ctx, arg)
	case "/team":
		n, text, _ := strings.Cut(arg, " ")
		var id int
		if _, serr := fmt.Sscanf(n, "%d", &id); serr != nil || text == "" {
			err = errors.New("usage: /team <n> <text>")
			break
		}
		_, err = r.s.SendMessage(ctx, protocol.TeamChannel(id), text)
	case "/history":
		err = r.history(ctx, arg)
	case "/older":
		err = r.older(ctx, arg)
	case "/room":
		err = r.room(ctx)
	case "/status":
		var st session.Status
		if st, err = r.s.Status(ctx); err == nil {
			r.printf("%s epoch=%d user=%s attempt=%d\n", st.State, st.Epoch, st.Username, st.Attempt)
		}
	case "/reconnect":
		_, err = r.s.Reconnect(ctx)
	default:
		if strings.HasPrefix(cmd, "/") {
			err = fmt.Errorf("unknown command %s, try /help", cmd)
			break
		}
		ch := protocol.ChannelLobby
		if _, ok, _ := r.s.Room(ctx); ok {
			ch = protocol.ChannelPublic
		}
		_, err = r.s.SendMessage(ctx, ch, line)
	}
	if err != nil {
		r.printf("! %v\n", err)
	}
	return false
}

func (r *repl) voice(ctx context.Context, arg string) error {
	switch arg {
	case "on", "unmute":
		return r.s.SetVoice(ctx, true, false)
	case "off":
		return r.s.SetVoice(ctx, false, false)
	case "mute":
		return r.s.SetVoice(ctx, true, true)
	}
	return errors.New("usage: /voice on|off|mute|unmute")
}

func channelArg(arg string) (protocol.Channel, error) {
	if arg == "" {
		return protocol.ChannelLobby, nil
	}
	ch := protocol.Channel(arg)
	if !ch.Valid() {
		return "", fmt.Errorf("unknown channel %q", arg)
	}
	return ch, nil
}

func (r *repl) history(ctx context.Context, arg string) error {
	ch, err := channelArg(arg)
	if err != nil {
		return err
	}
	msgs, err := r.s.Timeline(ctx, ch)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		mark := ""
		if m.Pending {
			mark = " (sending)"
		}
		r.printf("%s %s: %s%s\n", m.Time.Local().Format("15:04"), m.Username, m.Content, mark)
	}
	return nil
}

// older pulls the page before the oldest message held and reprints the
// channel.
func (r *repl) older(ctx context.Context, arg string) error {
	ch, err := channelArg(arg)
	if err != nil {
		return err
	}
	// marked as shown under the lock so tail does not print the page as new
	r.mu.Lock()
	n, err := r.s.LoadHistory(ctx, ch, time.Time{})
	if err == nil {
		var msgs []protocol.Message
		if msgs, err = r.s.Timeline(ctx, ch); err == nil {
			for _, m := range msgs {
				if !m.Pending {
					r.seen[m.ID] = struct{}{}
				}
			}
		}
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if n == 0 {
		r.printf("no earlier messages in %s\n", ch)
		return nil
	}
	return r.history(ctx, string(ch))
}

func (r *repl) room(ctx context.Context) error {
	v, err := r.s.View(ctx)
	if err != nil {
		return err
	}
	if v.Room == nil {
		return errors.New("not in a room")
	}
	room := v.Room
	r.printf("%s %q status=%s owner=%s\n", room.ID, room.Name, room.Status, room.OwnerID)
	for _, p := range room.Players {
		pres := v.Presence[p.UserID]
		r.printf("  team %d  %-16s %s voice=%t muted=%t\n", p.TeamID, p.Username, pres.Status, pres.VoiceEnabled, pres.Muted)
	}
	ids := make([]string, 0, len(room.Spectators))
	for _, p := range room.Spectators {
		ids = append(ids, p.Username)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		r.printf("  spectators: %s\n", strings.Join(ids, ", "))
	}
	return nil
}
