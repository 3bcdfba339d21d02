package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"duel-arena/internal/arena"
	"duel-arena/internal/duel"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 16

// Arena is the coordinator surface exposed over HTTP.
type Arena interface {
	CreateChallenge(ctx context.Context, req arena.ChallengeRequest) (*duel.Duel, error)
	AcceptChallenge(ctx context.Context, duelID, playerID string) (*duel.Duel, error)
	DeclineChallenge(ctx context.Context, duelID, playerID string) (*duel.Duel, error)
	Cancel(ctx context.Context, duelID, actorID string) (*duel.Duel, error)
	MarkReady(ctx context.Context, duelID, playerID string) (bool, error)
	SubmitAction(ctx context.Context, duelID, playerID string, action duel.Action) (bool, error)
	Forfeit(ctx context.Context, duelID, playerID string) (*duel.Duel, error)
	Get(ctx context.Context, duelID string) (*duel.Duel, error)
	State(ctx context.Context, duelID, viewer string) (arena.StateView, error)
	Balance(ctx context.Context, playerID string) (int64, error)
}

type DuelHandlers struct {
	arena Arena
}

func NewDuelHandlers(a Arena) *DuelHandlers {
	return &DuelHandlers{arena: a}
}

type playerRequest struct {
	PlayerID string `json:"player_id"`
}

type actionRequest struct {
	PlayerID string      `json:"player_id"`
	Action   duel.Action `json:"action"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func (h *DuelHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req arena.ChallengeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		d, err := h.arena.CreateChallenge(r.Context(), req)
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

// transition wraps the accept, decline and cancel endpoints, which share a
// body of {"player_id": ...}.
func (h *DuelHandlers) transition(fn func(ctx context.Context, duelID, playerID string) (*duel.Duel, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req playerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		d, err := fn(r.Context(), chi.URLParam(r, "duel_id"), req.PlayerID)
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (h *DuelHandlers) Accept() http.HandlerFunc  { return h.transition(h.arena.AcceptChallenge) }
func (h *DuelHandlers) Decline() http.HandlerFunc { return h.transition(h.arena.DeclineChallenge) }
func (h *DuelHandlers) Cancel() http.HandlerFunc  { return h.transition(h.arena.Cancel) }
func (h *DuelHandlers) Forfeit() http.HandlerFunc { return h.transition(h.arena.Forfeit) }

func (h *DuelHandlers) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req playerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		both, err := h.arena.MarkReady(r.Context(), chi.URLParam(r, "duel_id"), req.PlayerID)
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"both_ready": both})
	}
}

func (h *DuelHandlers) Action() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		// auto marks server-applied timeouts only
		req.Action.Auto = false
		resolved, err := h.arena.SubmitAction(r.Context(), chi.URLParam(r, "duel_id"), req.PlayerID, req.Action)
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"round_resolved": resolved})
	}
}

func (h *DuelHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := h.arena.Get(r.Context(), chi.URLParam(r, "duel_id"))
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// State returns the duel as seen by ?player_id=. Other callers get the
// public view.
func (h *DuelHandlers) State() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.arena.State(r.Context(), chi.URLParam(r, "duel_id"), r.URL.Query().Get("player_id"))
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (h *DuelHandlers) Account() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := chi.URLParam(r, "player_id")
		bal, err := h.arena.Balance(r.Context(), playerID)
		if err != nil {
			writeDuelError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"player_id": playerID, "balance": bal})
	}
}
