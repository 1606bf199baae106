package bundle

import (
	"context"
	"fmt"
	"log/slog"

	"mdbundle/internal/config"
	"mdbundle/internal/store"
	"mdbundle/internal/store/csvstore"
	"mdbundle/internal/store/duckdb"
	"mdbundle/internal/store/postgres"
)

// OpenStore opens the bundle store selected by cfg.Store.Driver
func OpenStore(ctx context.Context, cfg *config.Config) (store.Bundle, error) {
	switch cfg.Store.Driver {
	case "duckdb":
		st, err := duckdb.Open(ctx, cfg.Store.DuckDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb store: %w", err)
		}
		slog.InfoContext(ctx, "store_opened",
			slog.String("driver", "duckdb"),
			slog.String("path", cfg.Store.DuckDBPath))
		return st, nil
	case "postgres":
		st, err := postgres.Open(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		slog.InfoContext(ctx, "store_opened",
			slog.String("driver", "postgres"),
			slog.String("host", cfg.Store.Postgres.Host),
			slog.String("database", cfg.Store.Postgres.Name))
		return st, nil
	case "", "csv":
		slog.InfoContext(ctx, "store_opened",
			slog.String("driver", "csv"),
			slog.String("dir", cfg.Paths.BundleDir))
		return csvstore.New(cfg.Paths.BundleDir), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
