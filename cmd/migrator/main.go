// Command migrator applies the SQL files under the migrations
// directory in lexical order, tracking what has already run in a
// schema_migrations table. It is safe to run on every deploy.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Arbitrary but stable key so concurrent migrator runs serialize.
const migrationLockKey = 874002113

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "/migrations"
	}

	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Simple protocol so a single Exec can run multi-statement files.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	cfg.ConnConfig.RuntimeParams["application_name"] = "courier-migrator"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)

	if _, err := conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            name TEXT PRIMARY KEY,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	ran, err := migrate(ctx, conn, dir)
	if err != nil {
		return err
	}

	log.Printf("done, %d migration(s) applied", ran)
	return nil
}

func migrate(ctx context.Context, conn *pgxpool.Conn, dir string) (int, error) {
	names, err := pendingFiles(ctx, conn, dir)
	if err != nil {
		return 0, err
	}

	for i, name := range names {
		sql, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return i, fmt.Errorf("read %s: %w", name, err)
		}

		start := time.Now()
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return i, fmt.Errorf("run %s: %w", name, err)
		}
		if _, err := conn.Exec(ctx,
			"INSERT INTO schema_migrations(name) VALUES($1)", name); err != nil {
			return i, fmt.Errorf("record %s: %w", name, err)
		}
		log.Printf("applied %s in %s", name, time.Since(start).Round(time.Millisecond))
	}

	return len(names), nil
}

// pendingFiles lists the *.up.sql files in dir that have not been
// recorded in schema_migrations yet, sorted by name.
func pendingFiles(ctx context.Context, conn *pgxpool.Conn, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	done := make(map[string]bool)
	rows, err := conn.Query(ctx, "SELECT name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pending []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		if done[name] {
			log.Printf("skip %s, already applied", name)
			continue
		}
		pending = append(pending, name)
	}
	sort.Strings(pending)

	return pending, nil
}
