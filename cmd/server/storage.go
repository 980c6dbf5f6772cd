package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kikaiken/kikaiken/pkg/config"
	"github.com/kikaiken/kikaiken/pkg/storage"
	"github.com/kikaiken/kikaiken/pkg/storage/memory"
	"github.com/kikaiken/kikaiken/pkg/storage/postgres"
	"github.com/kikaiken/kikaiken/pkg/storage/sqlite"
)

// memoryMaxRecords caps the in-memory store.
const memoryMaxRecords = 10000

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_records", memoryMaxRecords)
		return memory.New(memoryMaxRecords), nil

	case "sqlite", "":
		s, err := sqlite.New(ctx, sqlite.Config{Path: cfg.SQLite.Path, Dir: cfg.SQLite.Dir})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "sqlite", "path", s.Path())
		return s, nil

	case "postgres":
		s, err := postgres.New(ctx, postgres.FromConfig(cfg.Postgres))
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
