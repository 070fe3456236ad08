package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/graaaaa/livekit-webhook-logger/internal/config"
	"github.com/graaaaa/livekit-webhook-logger/internal/derive"
	"github.com/graaaaa/livekit-webhook-logger/internal/store"
	"github.com/graaaaa/livekit-webhook-logger/internal/store/postgres"
	"github.com/graaaaa/livekit-webhook-logger/internal/store/sqlite"
)

// openStore opens the event log selected by cfg.Store.
func openStore(ctx context.Context, cfg config.Config, sec config.Secrets) (store.Log, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryLog(), nil

	case config.StoreSQLite:
		path, err := config.DatabasePath(cfg)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		st, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite event log opened", "path", path)
		return st, nil

	case config.StorePostgres:
		db, err := postgres.Connect(ctx, sec.DatabaseURL.Value())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("postgres event log connected")
		return db, nil

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// replayPresence rebuilds room presence from a durable log, page by page.
func replayPresence(ctx context.Context, log store.Log, state *derive.State) (int, error) {
	filter := store.QueryFilter{Limit: store.MaxLimit}
	n := 0
	for {
		res, err := log.Query(ctx, filter)
		if err != nil {
			return n, err
		}
		state.Replay(res.Items)
		n += len(res.Items)
		if res.NextCursor == nil {
			return n, nil
		}
		filter.Cursor = res.NextCursor
	}
}

func loadConfig() (config.Config, config.Secrets, error) {
	return config.Load(config.LoadOptions{ConfigPath: configPath, EnvPath: envPath})
}
