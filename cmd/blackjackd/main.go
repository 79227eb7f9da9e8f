// Package main runs the blackjack backend: the session store, the timers,
// the event listeners, and optionally a line console on stdin that stands in
// for a chat adapter.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/config"
	"github.com/cory-johannsen/blackjack/internal/events"
	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/command"
	"github.com/cory-johannsen/blackjack/internal/game/timer"
	"github.com/cory-johannsen/blackjack/internal/gameserver"
	"github.com/cory-johannsen/blackjack/internal/observability"
	"github.com/cory-johannsen/blackjack/internal/server"
	"github.com/cory-johannsen/blackjack/internal/storage"
)

// listenerBackoff is the pause after a failed consume before polling again.
const listenerBackoff = 500 * time.Millisecond

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	console := flag.Bool("console", false, "read commands from stdin as '<room> <user-id> <name> <text>'")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	tp, err := observability.NewTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}

	rules := blackjack.DefaultRules()
	if cfg.Game.RulesFile != "" {
		if rules, err = blackjack.LoadRules(cfg.Game.RulesFile); err != nil {
			logger.Fatal("loading house rules", zap.String("path", cfg.Game.RulesFile), zap.Error(err))
		}
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}

	lock := storage.LockOptions{
		AcquireTimeout: cfg.Lock.AcquireTimeout,
		Hold:           cfg.Lock.Hold,
		Retry:          cfg.Lock.Retry,
	}
	clock := timer.RealClock{}
	scheduler := timer.NewScheduler(clock, logger.Named("timer"))
	bus := events.NewBus(be.log, logger.Named("events"))
	pool := events.NewPool(cfg.Workers.Size, cfg.Workers.QueueCapacity, logger.Named("workers"))
	notifier := gameserver.NewLogNotifier(logger.Named("notice"))
	sessions := storage.NewSessionRepository(be.store, cfg.Storage.SessionTTL)

	games := gameserver.NewGameService(
		sessions,
		storage.NewStateRepository(be.store),
		be.store,
		be.accounts,
		bus,
		scheduler,
		notifier,
		clock,
		nil,
		gameserver.GameConfig{
			BidTimeout:   cfg.Game.BidTimeout,
			TurnTimeout:  cfg.Game.TurnTimeout,
			StartBalance: cfg.Game.StartBalance,
			RetryDelay:   cfg.Game.DealerRetry,
			Rules:        rules,
			Lock:         lock,
		},
		logger.Named("game"),
	)
	lobbies := gameserver.NewLobbyService(
		storage.NewLobbyRepository(be.store),
		sessions,
		be.store,
		bus,
		scheduler,
		notifier,
		clock,
		gameserver.LobbyConfig{
			MinTimeout:     cfg.Game.LobbyMin,
			MaxTimeout:     cfg.Game.LobbyMax,
			DefaultTimeout: cfg.Game.LobbyDefault,
			Tick:           cfg.Game.LobbyTick,
			Seats:          rules.MaxPlayers,
			Lock:           lock,
		},
		logger.Named("lobby"),
	)

	// Stopped last: flush spans, then close the store.
	lifecycle := server.NewLifecycle(logger, 10*time.Second)
	lifecycle.Add("storage", server.OnStop(be.close))
	lifecycle.Add("tracing", server.OnStop(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}))
	names := make([]string, 0, len(be.services))
	for name := range be.services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lifecycle.Add(name, be.services[name])
	}
	lifecycle.Add("workers", pool)
	listeners := gameserver.NewListeners(bus, pool, games, cfg.Events.MaxAttempts, listenerBackoff, logger.Named("listener"))
	for _, topic := range events.Topics {
		lifecycle.Add("listener:"+string(topic), listeners[topic])
	}
	lifecycle.Add("timers", scheduler)
	if *console {
		bonus := storage.BonusTerms{Amount: cfg.Game.BonusAmount, Below: cfg.Game.BonusBelow, Cooldown: cfg.Game.BonusCooldown}
		dispatcher := command.NewDispatcher(command.DefaultRegistry(), lobbies, games, be.accounts, bonus, clock.Now, logger.Named("command"))
		lifecycle.Add("console", newConsole(os.Stdin, os.Stdout, dispatcher, logger.Named("console")))
	}

	logger.Info("blackjack server ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("console", *console),
		zap.Duration("startup", time.Since(start)),
	)
	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server stopped with errors", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
