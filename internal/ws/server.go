// Package ws serves the live duel channel over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"duel-arena/internal/arena"
	"duel-arena/internal/duel"
	"duel-arena/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	opTimeout      = 15 * time.Second
)

// Arena is the part of the coordinator the live channel drives.
type Arena interface {
	Get(ctx context.Context, duelID string) (*duel.Duel, error)
	Connect(ctx context.Context, duelID, playerID string) error
	Disconnect(ctx context.Context, duelID, playerID string) error
	MarkReady(ctx context.Context, duelID, playerID string) (bool, error)
	SubmitAction(ctx context.Context, duelID, playerID string, action duel.Action) (bool, error)
	Forfeit(ctx context.Context, duelID, playerID string) (*duel.Duel, error)
	Watch(ctx context.Context, duelID string) (*arena.EventBuffer, error)
}

type presenceKey struct {
	duelID   string
	playerID string
}

type Client struct {
	conn     *websocket.Conn
	duelID   string
	playerID string
	send     chan []byte
	done     chan struct{}
	stopped  chan struct{}
}

type Server struct {
	arena    Arena
	upgrader websocket.Upgrader

	mu      sync.Mutex
	live    map[presenceKey]int
	clients map[*Client]struct{}
}

func NewServer(a Arena) *Server {
	return &Server{
		arena:    a,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		live:     map[presenceKey]int{},
		clients:  map[*Client]struct{}{},
	}
}

// HandleLive attaches a participant to GET /api/duels/{duel_id}/live.
// Query: player_id (required), last_event_id (replay cursor).
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	duelID := chi.URLParam(r, "duel_id")
	playerID := r.URL.Query().Get("player_id")
	lastEventID := r.URL.Query().Get("last_event_id")

	d, err := s.arena.Get(r.Context(), duelID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !d.IsParty(playerID) {
		writeError(w, duel.Validationf("%q is not a party to duel %s", playerID, duelID))
		return
	}
	buf, err := s.arena.Watch(r.Context(), duelID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Client{
		conn:     conn,
		duelID:   duelID,
		playerID: playerID,
		send:     make(chan []byte, 16),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	events := buf.Subscribe()
	replay := buf.ReplayAfter(lastEventID)

	s.attach(c)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	err = s.arena.Connect(ctx, duelID, playerID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("duel_id", duelID).Str("player_id", playerID).Msg("live connect rejected")
		s.enqueue(c, errorMessage(duelID, "", duel.Code(err)))
	}
	log.Info().Str("duel_id", duelID).Str("player_id", playerID).Int("replay", len(replay)).Msg("live channel attached")

	go s.writeLoop(c, buf, events, replay)
	s.readLoop(c)
}

// Close drops every live connection. Used on shutdown; the read loops then
// run the normal disconnect path.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

func (s *Server) attach(c *Client) {
	s.mu.Lock()
	s.live[presenceKey{c.duelID, c.playerID}]++
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	metrics.Get().LiveConnections.Inc()
}

// detach runs the presence disconnect path once the player's last
// connection to the duel is gone.
func (s *Server) detach(c *Client) {
	key := presenceKey{c.duelID, c.playerID}
	s.mu.Lock()
	delete(s.clients, c)
	s.live[key]--
	remaining := s.live[key]
	if remaining <= 0 {
		delete(s.live, key)
	}
	s.mu.Unlock()
	metrics.Get().LiveConnections.Dec()
	if remaining > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.arena.Disconnect(ctx, c.duelID, c.playerID); err != nil {
		log.Warn().Err(err).Str("duel_id", c.duelID).Str("player_id", c.playerID).Msg("presence disconnect failed")
	}
	if s.connected(key) {
		// a new connection raced in while the disconnect was recorded
		if err := s.arena.Connect(ctx, c.duelID, c.playerID); err != nil {
			log.Warn().Err(err).Str("duel_id", c.duelID).Str("player_id", c.playerID).Msg("presence reconnect failed")
		}
	}
	log.Info().Str("duel_id", c.duelID).Str("player_id", c.playerID).Msg("live channel detached")
}

func (s *Server) connected(key presenceKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[key] > 0
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		close(c.done)
		_ = c.conn.Close()
		s.detach(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := decodeClientMessage(raw)
		if err != nil {
			log.Debug().Err(err).Str("duel_id", c.duelID).Str("player_id", c.playerID).Msg("invalid live message")
			s.enqueue(c, errorMessage(c.duelID, "", "invalid_message"))
			continue
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) handleMessage(c *Client, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		data any
		err  error
	)
	switch msg.Type {
	case MsgReady:
		var both bool
		both, err = s.arena.MarkReady(ctx, c.duelID, c.playerID)
		data = map[string]any{"both_ready": both}
	case MsgSubmitAction:
		var resolved bool
		resolved, err = s.arena.SubmitAction(ctx, c.duelID, c.playerID, *msg.Action)
		data = map[string]any{"round_resolved": resolved}
	case MsgForfeit:
		var d *duel.Duel
		d, err = s.arena.Forfeit(ctx, c.duelID, c.playerID)
		if err == nil {
			data = map[string]any{"status": d.Status}
		}
	}
	if err != nil {
		if !errors.Is(err, duel.ErrValidation) && !errors.Is(err, duel.ErrStateTransition) {
			log.Warn().Err(err).Str("duel_id", c.duelID).Str("player_id", c.playerID).Str("type", msg.Type).Msg("live message failed")
		}
		s.enqueue(c, errorMessage(c.duelID, msg.RequestID, duel.Code(err)))
		return
	}
	s.enqueue(c, resultMessage(c.duelID, msg.RequestID, data))
}

func (s *Server) enqueue(c *Client, msg ServerMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	case <-c.stopped:
	}
}

// writeLoop owns all writes to the connection. Replayed events go first;
// ids already sent are skipped so the replay and live feed can overlap.
func (s *Server) writeLoop(c *Client, buf *arena.EventBuffer, events chan arena.Event, replay []arena.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		close(c.stopped)
		ticker.Stop()
		buf.Unsubscribe(events)
		_ = c.conn.Close()
	}()

	var lastSent int64
	emit := func(ev arena.Event) error {
		if !ev.VisibleTo(c.playerID) {
			return nil
		}
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id <= lastSent {
			return nil
		}
		lastSent = id
		return s.writeJSON(c, eventMessage(ev))
	}

	for _, ev := range replay {
		if err := emit(ev); err != nil {
			return
		}
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.drain(c)
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "duel_ended"))
				return
			}
			if err := emit(ev); err != nil {
				return
			}
		case b := <-c.send:
			if err := s.write(c, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// drain flushes queued replies before the connection closes.
func (s *Server) drain(c *Client) {
	for {
		select {
		case b := <-c.send:
			if err := s.write(c, b); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) writeJSON(c *Client, msg ServerMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(c, b)
}

func (s *Server) write(c *Client, b []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, duel.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, duel.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, duel.ErrStateTransition):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": duel.Code(err)})
}
