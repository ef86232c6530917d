package main

import (
	"database/sql"
	"flag"
	"log/slog"
	"os"

	"github.com/tradegate/tradegate/configs"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	_ "github.com/jackc/pgx/v5/stdlib"        // Postgres driver
	"github.com/pressly/goose/v3"
)

// migrate applies schema migrations for both stores: market data and
// bars live in ClickHouse, orders in Postgres.
func main() {
	target := flag.String("db", "all", "which database to migrate: clickhouse, postgres or all")
	flag.Parse()

	cfg := configs.AppLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *target == "clickhouse" || *target == "all" {
		run(logger, "clickhouse", "clickhouse", cfg.MarketDataDSN, "internal/migrations/clickhouse")
	}
	if *target == "postgres" || *target == "all" {
		run(logger, "pgx", "postgres", cfg.OrdersDSN, "internal/migrations/postgres")
	}

	logger.Info("Migrations completed successfully")
}

func run(logger *slog.Logger, driver, dialect, dsn, dir string) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Error("Failed to connect to database", "dialect", dialect, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "dialect", dialect, "error", err)
		os.Exit(1)
	}

	if err := goose.SetDialect(dialect); err != nil {
		logger.Error("Goose: failed to set dialect", "dialect", dialect, "error", err)
		os.Exit(1)
	}

	logger.Info("Running database migrations...", "dialect", dialect, "dir", dir)
	if err := goose.Up(db, dir); err != nil {
		logger.Error("Goose migration failed", "dialect", dialect, "error", err)
		os.Exit(1)
	}
}
