package dispatch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(production bool) (*Dispatcher, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core), production), logs
}

func TestDispatch_DeliversToLiveHandler(t *testing.T) {
	d, _ := newObserved(false)
	d.SetEpoch(1)

	var got string
	d.Register("roomMessage", func(p json.RawMessage) error {
		got = string(p)
		return nil
	})

	ok := d.Dispatch("roomMessage", json.RawMessage(`{"id":"m1"}`), 1)
	require.True(t, ok)
	assert.Equal(t, `{"id":"m1"}`, got)
}

func TestDispatch_DropsMismatchedEpoch(t *testing.T) {
	cases := []struct {
		name         string
		handlerEpoch uint64
		liveEpoch    uint64
		eventEpoch   uint64
		want         bool
	}{
		{name: "all match", handlerEpoch: 2, liveEpoch: 2, eventEpoch: 2, want: true},
		{name: "event from previous epoch", handlerEpoch: 2, liveEpoch: 2, eventEpoch: 1, want: false},
		{name: "event from future epoch", handlerEpoch: 2, liveEpoch: 2, eventEpoch: 3, want: false},
		{name: "handler from previous epoch", handlerEpoch: 1, liveEpoch: 2, eventEpoch: 2, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := newObserved(false)
			d.SetEpoch(tc.handlerEpoch)
			calls := 0
			d.Register("userKicked", func(json.RawMessage) error {
				calls++
				return nil
			})
			d.SetEpoch(tc.liveEpoch)

			got := d.Dispatch("userKicked", nil, tc.eventEpoch)
			assert.Equal(t, tc.want, got)
			if tc.want {
				assert.Equal(t, 1, calls)
			} else {
				assert.Zero(t, calls)
			}
		})
	}
}

func TestDispatch_UnknownEventIsDroppedNotError(t *testing.T) {
	d, logs := newObserved(false)
	d.SetEpoch(1)

	assert.False(t, d.Dispatch("nobodyListens", nil, 1))
	assert.Equal(t, 1, logs.FilterMessage("no handler, event dropped").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRegister_ReplaceWarnsOutsideProduction(t *testing.T) {
	d, logs := newObserved(false)
	first, second := 0, 0
	d.Register("playerJoined", func(json.RawMessage) error { first++; return nil })
	d.Register("playerJoined", func(json.RawMessage) error { second++; return nil })

	d.Dispatch("playerJoined", nil, 0)

	assert.Zero(t, first, "last registration wins")
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, logs.FilterMessage("handler replaced").Len())
	assert.Equal(t, 1, d.Len())
}

func TestRegister_ReplaceIsQuietInProduction(t *testing.T) {
	d, logs := newObserved(true)
	d.Register("playerJoined", func(json.RawMessage) error { return nil })
	d.Register("playerJoined", func(json.RawMessage) error { return nil })

	assert.Zero(t, logs.FilterMessage("handler replaced").Len())
}

func TestDispatch_FailingHandlerIsIsolated(t *testing.T) {
	d, logs := newObserved(false)
	d.SetEpoch(3)

	var order []string
	d.Register("a", func(json.RawMessage) error {
		order = append(order, "a")
		return errors.New("boom")
	})
	d.Register("b", func(json.RawMessage) error {
		order = append(order, "b")
		panic("handler bug")
	})
	d.Register("c", func(json.RawMessage) error {
		order = append(order, "c")
		return nil
	})

	assert.False(t, d.Dispatch("a", nil, 3))
	assert.False(t, d.Dispatch("b", nil, 3))
	assert.True(t, d.Dispatch("c", nil, 3))

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 2, logs.FilterMessage("handler failed").Len())
}

func TestUnregister(t *testing.T) {
	d, _ := newObserved(false)
	d.Register("a", func(json.RawMessage) error { return nil })
	d.Register("b", func(json.RawMessage) error { return nil })

	d.Unregister("a")
	assert.False(t, d.Registered("a"))
	assert.True(t, d.Registered("b"))

	d.UnregisterAll()
	assert.Zero(t, d.Len())
	assert.False(t, d.Dispatch("b", nil, 0))
}
