package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/npc-town/server/internal/api"
	"github.com/npc-town/server/internal/config"
	"github.com/npc-town/server/internal/oracle"
	"github.com/npc-town/server/internal/store"
	"github.com/npc-town/server/internal/world"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Timeout.Std())
	adapter := oracle.NewAdapter(client, cfg.Oracle.Model, cfg.Oracle.Timeout.Std(), log)

	sentiment, err := world.NewExprClassifier(cfg.SentimentExpr)
	if err != nil {
		log.Error("invalid sentiment expression", "error", err)
		os.Exit(1)
	}

	engine := world.NewEngine(cfg.WorldSize, world.NewLedger(sentiment))
	reset := world.NewResetController(st, log)
	clock := world.NewClock(st, adapter, engine, reset, world.ClockConfig{Workers: cfg.TickWorkers}, log)

	server := api.NewServer(st, st, clock, engine, api.Config{
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, log)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Info("starting server", "addr", addr, "world_size", cfg.WorldSize)

	if err := http.ListenAndServe(addr, server); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
