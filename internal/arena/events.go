package arena

import (
	"context"
	"strconv"
	"sync"
	"time"

	"duel-arena/internal/duel"
)

const eventBufferSize = 256

const (
	EventStateUpdate   = "state_update"
	EventDuelStarted   = "duel_started"
	EventRoundResolved = "round_resolved"
	EventDuelEnded     = "duel_ended"
	EventPresence      = "presence"
)

// Event is one entry of a duel's live stream. PlayerID scopes the event to a
// single participant; empty means both.
type Event struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	DuelID   string `json:"duel_id"`
	PlayerID string `json:"-"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
}

// VisibleTo reports whether playerID may see e.
func (e Event) VisibleTo(playerID string) bool {
	return e.PlayerID == "" || e.PlayerID == playerID
}

// EventBuffer keeps the most recent events of a duel for replay and fans new
// ones out to subscribers. Slow subscribers drop events rather than block.
type EventBuffer struct {
	mu       sync.Mutex
	duelID   string
	nextID   int64
	max      int
	events   []Event
	watchers map[chan Event]struct{}
	closed   bool
}

func NewEventBuffer(duelID string, max int) *EventBuffer {
	if max <= 0 {
		max = eventBufferSize
	}
	return &EventBuffer{
		duelID:   duelID,
		max:      max,
		watchers: map[chan Event]struct{}{},
	}
}

func (b *EventBuffer) Append(event, playerID string, data any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}
	}
	b.nextID++
	ev := Event{
		EventID:  strconv.FormatInt(b.nextID, 10),
		Event:    event,
		DuelID:   b.duelID,
		PlayerID: playerID,
		ServerTS: time.Now().UnixMilli(),
		Data:     data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// ReplayAfter returns buffered events newer than lastEventID. An empty or
// malformed id replays everything still buffered.
func (b *EventBuffer) ReplayAfter(lastEventID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if err != nil {
		last = 0
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

func (b *EventBuffer) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *EventBuffer) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *EventBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}

// Events returns the live buffer of a duel, creating it on first use.
func (c *Coordinator) Events(duelID string) *EventBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buffers[duelID]
	if !ok {
		b = NewEventBuffer(duelID, eventBufferSize)
		c.buffers[duelID] = b
	}
	return b
}

// Watch returns the live buffer of a duel that has not ended. The status is
// read under the duel lock, so a settlement either happens first and the
// call fails, or happens later and closes the returned buffer.
func (c *Coordinator) Watch(ctx context.Context, duelID string) (*EventBuffer, error) {
	var buf *EventBuffer
	err := c.withLock(ctx, duelID, func(ctx context.Context) error {
		d, err := c.records.GetDuel(ctx, duelID)
		if err != nil {
			return err
		}
		if d.Status.IsTerminal() {
			return duel.StatusError("live", d.Status)
		}
		buf = c.Events(duelID)
		return nil
	})
	return buf, err
}

func (c *Coordinator) publish(duelID, event, playerID string, data any) {
	c.Events(duelID).Append(event, playerID, data)
}

func (c *Coordinator) publishState(d *duel.Duel, st *duel.ActiveState) {
	for _, p := range d.Parties() {
		c.publish(d.ID, EventStateUpdate, p, ViewFor(d, st, p))
	}
}

// closeEvents publishes the terminal event and drops the buffer.
func (c *Coordinator) closeEvents(d *duel.Duel) {
	c.mu.Lock()
	b, ok := c.buffers[d.ID]
	delete(c.buffers, d.ID)
	c.mu.Unlock()
	if !ok {
		return
	}
	b.Append(EventDuelEnded, "", endedPayload(d))
	b.Close()
}

func endedPayload(d *duel.Duel) map[string]any {
	out := map[string]any{
		"duel_id": d.ID,
		"status":  d.Status,
		"rounds":  d.Rounds,
	}
	if d.Outcome != nil {
		out["outcome"] = d.Outcome
	}
	return out
}
