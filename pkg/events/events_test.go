package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	failing := PublisherFunc(func(context.Context, Event) error { return errors.New("broker down") })
	d := NewDispatcher(8, nil, failing, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		d.Dispatch(Event{Type: TypeTrade, Ticker: "REP", Payload: Trade{ID: uint64(i + 1)}})
	}

	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for i, ev := range rec.events {
		assert.Equal(t, uint64(i+1), ev.Payload.(Trade).ID)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, nil)
	d.Dispatch(Event{Type: TypeDeposit})
	d.Dispatch(Event{Type: TypeDeposit})
	d.Dispatch(Event{Type: TypeDeposit})
	assert.Equal(t, uint64(2), d.Dropped())
}

func TestDispatcherFlushesOnShutdown(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(4, nil, rec)
	d.Dispatch(Event{Type: TypeOrderCreated})
	d.Dispatch(Event{Type: TypeOrderCreated})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, 2, rec.count())
}

func TestEncodeMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := encodeMessage(Event{Type: TypeTrade, Ticker: "BAT", Time: ts, Payload: Trade{ID: 9, Amount: "1000"}})
	require.NoError(t, err)

	assert.Equal(t, []byte("BAT"), msg.Key)
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "trade", string(msg.Headers[0].Value))

	var decoded struct {
		Type    string `json:"type"`
		Payload Trade  `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, uint64(9), decoded.Payload.ID)
	assert.Equal(t, "1000", decoded.Payload.Amount)
}
