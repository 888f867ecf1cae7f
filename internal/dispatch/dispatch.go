// Package dispatch routes pushed realtime events to the single handler
// registered for each event name under the live connection epoch.
package dispatch

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Handler consumes one event payload. Returned errors are logged and never
// propagate past the dispatcher.
type Handler func(payload json.RawMessage) error

type entry struct {
	epoch  uint64
	handle Handler
}

// Dispatcher is not safe for concurrent use; it is owned by the session loop.
type Dispatcher struct {
	log        *zap.Logger
	production bool
	live       uint64
	handlers   map[string]entry
}

func New(log *zap.Logger, production bool) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:        log.Named("dispatch"),
		production: production,
		handlers:   make(map[string]entry),
	}
}

// SetEpoch moves the dispatcher to a new connection epoch. Handlers
// registered under the previous epoch stop receiving events.
func (d *Dispatcher) SetEpoch(epoch uint64) { d.live = epoch }

func (d *Dispatcher) Epoch() uint64 { return d.live }

// Register binds h to name for the live epoch. A second registration for the
// same name replaces the first.
func (d *Dispatcher) Register(name string, h Handler) {
	if prev, ok := d.handlers[name]; ok && !d.production {
		d.log.Warn("handler replaced",
			zap.String("event", name),
			zap.Uint64("previous_epoch", prev.epoch),
			zap.Uint64("epoch", d.live))
	}
	d.handlers[name] = entry{epoch: d.live, handle: h}
}

func (d *Dispatcher) Unregister(name string) { delete(d.handlers, name) }

func (d *Dispatcher) UnregisterAll() { clear(d.handlers) }

// Registered reports whether a handler is bound to name.
func (d *Dispatcher) Registered(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

func (d *Dispatcher) Len() int { return len(d.handlers) }

// Dispatch delivers payload to the handler for name if the event epoch, the
// handler epoch and the live epoch all agree. It reports whether a handler
// ran without failing.
func (d *Dispatcher) Dispatch(name string, payload json.RawMessage, epoch uint64) bool {
	e, ok := d.handlers[name]
	if !ok {
		d.log.Debug("no handler, event dropped", zap.String("event", name), zap.Uint64("epoch", epoch))
		return false
	}
	if epoch != d.live || e.epoch != d.live {
		d.log.Debug("stale epoch, event dropped",
			zap.String("event", name),
			zap.Uint64("event_epoch", epoch),
			zap.Uint64("handler_epoch", e.epoch),
			zap.Uint64("live_epoch", d.live))
		return false
	}
	if err := d.run(e.handle, payload); err != nil {
		d.log.Error("handler failed", zap.String("event", name), zap.Error(err))
		return false
	}
	return true
}

func (d *Dispatcher) run(h Handler, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(payload)
}
