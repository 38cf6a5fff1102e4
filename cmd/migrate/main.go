// Command migrate applies or rolls back the SQL migrations in migrations/.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/atlasgate/atlasgate/internal/config"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		dir         = flag.String("dir", "migrations", "Directory holding NNNNNN_name.{up,down}.sql files")
		direction   = flag.String("direction", "up", "Direction: up or down")
		steps       = flag.Int("steps", 0, "Number of migrations to apply; 0 means all for up and 1 for down")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", *databaseURL)
	if err != nil {
		logger.Error("open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("ping database",
			slog.String("error", err.Error()),
			slog.String("database_url", config.RedactURL(*databaseURL)),
		)
		os.Exit(1)
	}

	migrations, err := loadMigrations(os.DirFS(*dir))
	if err != nil {
		logger.Error("load migrations", slog.String("error", err.Error()), slog.String("dir", *dir))
		os.Exit(1)
	}

	m := &migrator{db: db, logger: logger}
	if err := m.run(ctx, migrations, *direction, *steps); err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
