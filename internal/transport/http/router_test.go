package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/arena"
	"duel-arena/internal/config"
	"duel-arena/internal/duel"
	"duel-arena/internal/ledger"
	"duel-arena/internal/lock"
	"duel-arena/internal/memstore"
	"duel-arena/internal/timer"

	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, checks map[string]Check) *httptest.Server {
	t.Helper()
	mem := memstore.New()
	timers := timer.NewScheduler()
	t.Cleanup(timers.Close)
	cfg := config.DefaultDuel()
	cfg.LockAttempts = 200
	cfg.LockBackoff = time.Millisecond
	coord := arena.NewCoordinator(arena.Deps{
		Records: mem,
		Ledger:  ledger.New(mem),
		States:  activestate.NewMemoryStore(time.Hour),
		Locker:  lock.NewMemoryLocker(),
		Timers:  timers,
		Config:  cfg,
	})
	ctx := context.Background()
	require.NoError(t, mem.EnsureAccount(ctx, "alice", 100))
	require.NoError(t, mem.EnsureAccount(ctx, "bob", 100))

	ts := httptest.NewServer(NewRouter(coord, nil, RouterOptions{Checks: checks, MetricsEnabled: true}))
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestDuelLifecycleOverHTTP(t *testing.T) {
	ts := newTestAPI(t, nil)

	var d duel.Duel
	status := call(t, ts, http.MethodPost, "/api/duels",
		`{"challenger_id":"alice","opponent_id":"bob","kind":"wagered","wager":100}`, &d)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, duel.StatusPending, d.Status)

	var acct map[string]any
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/accounts/alice", "", &acct))
	require.EqualValues(t, 0, acct["balance"])

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/duels/"+d.ID+"/accept", `{"player_id":"bob"}`, &d))
	require.Equal(t, duel.StatusReadyCheck, d.Status)

	var ready map[string]bool
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/duels/"+d.ID+"/ready", `{"player_id":"alice"}`, &ready))
	require.False(t, ready["both_ready"])
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/duels/"+d.ID+"/ready", `{"player_id":"bob"}`, &ready))
	require.True(t, ready["both_ready"])

	var view arena.StateView
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/duels/"+d.ID+"/state?player_id=alice", "", &view))
	require.Equal(t, duel.StatusInProgress, view.Status)
	require.Equal(t, 1, view.Round)
	require.NotEmpty(t, view.Participants[0].Hand)
	require.Empty(t, view.Participants[1].Hand)

	var res map[string]bool
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/duels/"+d.ID+"/actions",
		`{"player_id":"alice","action":{"kind":"stand"}}`, &res))
	require.False(t, res["round_resolved"])

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/duels/"+d.ID+"/forfeit", `{"player_id":"alice"}`, &d))
	require.Equal(t, duel.StatusForfeited, d.Status)

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/api/accounts/bob", "", &acct))
	require.EqualValues(t, 200, acct["balance"])
}

func TestErrorResponses(t *testing.T) {
	ts := newTestAPI(t, nil)
	var d duel.Duel
	require.Equal(t, http.StatusCreated, call(t, ts, http.MethodPost, "/api/duels",
		`{"challenger_id":"alice","opponent_id":"bob","kind":"friendly"}`, &d))

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown duel", http.MethodGet, "/api/duels/nope", "", http.StatusNotFound, "duel_not_found"},
		{"bad json", http.MethodPost, "/api/duels", `{"challenger_id":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", http.MethodPost, "/api/duels", `{"challenger_id":"alice","mood":"bold"}`, http.StatusBadRequest, "invalid_json"},
		{"self challenge", http.MethodPost, "/api/duels", `{"challenger_id":"alice","opponent_id":"alice","kind":"friendly"}`, http.StatusBadRequest, "invalid_request"},
		{"broke", http.MethodPost, "/api/duels", `{"challenger_id":"alice","opponent_id":"bob","kind":"wagered","wager":500}`, http.StatusBadRequest, "insufficient_funds"},
		{"wrong acceptor", http.MethodPost, "/api/duels/" + d.ID + "/accept", `{"player_id":"alice"}`, http.StatusBadRequest, "invalid_request"},
		{"ready before accept", http.MethodPost, "/api/duels/" + d.ID + "/ready", `{"player_id":"alice"}`, http.StatusConflict, "invalid_state_transition"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]string
			status := call(t, ts, tc.method, tc.path, tc.body, &body)
			if status != tc.status || body["error"] != tc.code {
				t.Fatalf("%s %s = %d %q, want %d %q", tc.method, tc.path, status, body["error"], tc.status, tc.code)
			}
		})
	}
}

func TestMapDuelError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", duel.ErrNotFound), http.StatusNotFound, "duel_not_found"},
		{duel.Validationf("bad"), http.StatusBadRequest, "invalid_request"},
		{duel.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
		{duel.ErrConflict, http.StatusConflict, "conflict"},
		{duel.TransitionError(duel.StatusPending, duel.StatusCompleted), http.StatusConflict, "invalid_state_transition"},
		{duel.ErrSettlementDeferred, http.StatusServiceUnavailable, "settlement_deferred"},
		{duel.ErrLedgerInconsistency, http.StatusInternalServerError, "ledger_inconsistency"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := MapDuelError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("MapDuelError(%v) = %d %q, want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestHealthReportsBackends(t *testing.T) {
	ts := newTestAPI(t, map[string]Check{
		"records": func(context.Context) error { return nil },
		"state":   func(context.Context) error { return errors.New("connection refused") },
	})
	var body map[string]any
	status := call(t, ts, http.MethodGet, "/healthz", "", &body)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "up", body["records"])
	require.Equal(t, "down", body["state"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
