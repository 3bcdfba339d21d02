package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duel-arena/internal/activestate"
	"duel-arena/internal/arena"
	"duel-arena/internal/config"
	"duel-arena/internal/duel"
	"duel-arena/internal/ledger"
	"duel-arena/internal/lock"
	"duel-arena/internal/logging"
	"duel-arena/internal/memstore"
	"duel-arena/internal/store"
	"duel-arena/internal/timer"
	httptransport "duel-arena/internal/transport/http"
	"duel-arena/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// recordStore is what both the Postgres and in-memory backends provide.
type recordStore interface {
	duel.Records
	ledger.Book
	EnsureAccount(ctx context.Context, account string, initial int64) error
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(cfg.Log); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.Check{}
	records := openRecords(ctx, cfg.Server, checks)
	states, locker := openState(cfg.Server, cfg.Duel, checks)

	for _, player := range cfg.Server.SeedPlayers {
		if err := records.EnsureAccount(ctx, player, cfg.Server.SeedBalance); err != nil {
			log.Fatal().Err(err).Str("player_id", player).Msg("seed account failed")
		}
	}

	timers := timer.NewScheduler()
	coord := arena.NewCoordinator(arena.Deps{
		Records: records,
		Ledger:  ledger.New(records),
		States:  states,
		Locker:  locker,
		Timers:  timers,
		Config:  cfg.Duel,
	})
	report, err := coord.Reconcile(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("reconcile open duels failed")
	}
	log.Info().
		Int("open", report.Open).
		Int("rescheduled", report.Rescheduled).
		Int("closed", report.Closed).
		Int("failed", report.Failed).
		Msg("open duels reconciled")

	live := ws.NewServer(coord)
	r := httptransport.NewRouter(coord, live.HandleLive, httptransport.RouterOptions{
		Checks:         checks,
		MetricsEnabled: cfg.Server.MetricsEnabled,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("duel server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		live.Close()
		timers.Close()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func openRecords(ctx context.Context, cfg config.ServerConfig, checks map[string]httptransport.Check) recordStore {
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn().Msg("using in-memory record store; duels and balances are lost on restart")
		return memstore.New()
	}
	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("apply schema failed")
	}
	checks["db"] = st.Ping
	return st
}

func openState(cfg config.ServerConfig, duelCfg config.DuelConfig, checks map[string]httptransport.Check) (activestate.Store, lock.Locker) {
	if cfg.StateBackend == config.BackendMemory {
		log.Warn().Msg("using in-process state and locks; run a single instance only")
		return activestate.NewMemoryStore(duelCfg.StateTTL), lock.NewMemoryLocker()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("parse REDIS_URL failed")
	}
	client := redis.NewClient(opts)
	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return activestate.NewRedisStore(client, cfg.RedisKeyPrefix, duelCfg.StateTTL),
		lock.NewRedisLocker(client, cfg.RedisKeyPrefix)
}
