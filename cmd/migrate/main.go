package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"upload-column/internal/config"
	"upload-column/internal/recorddb"
)

// Usage: migrate [up|down]. Defaults to up.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger(os.Stdout))

	if cfg.DBDSN == "" {
		fatal("RECORD_DB_DSN is required")
	}
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	db, err := recorddb.Open(cfg.DBDSN)
	if err != nil {
		fatal("failed to open record db", "err", err)
	}
	defer db.Close()

	driver, err := mysql.WithInstance(db, &mysql.Config{})
	if err != nil {
		fatal("failed to create migration driver", "err", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.MigrationsPath, "mysql", driver)
	if err != nil {
		fatal("failed to create migration", "err", err)
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		fatal("unknown direction", "direction", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fatal("migration failed", "direction", direction, "err", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migration completed", "direction", direction, "version", version, "dirty", dirty)
}

func fatal(msg string, attrs ...any) {
	slog.Error(msg, attrs...)
	os.Exit(1)
}
