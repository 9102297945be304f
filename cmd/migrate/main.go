package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"kv_bot/migrations"
)

func main() {
	driver := flag.String("driver", envOrDefault("STORAGE_DRIVER", "sqlite"), "database driver: sqlite or postgres")
	dbPath := flag.String("db", "", "sqlite database path or postgres DSN (default: DATABASE_PATH or DATABASE_URL)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-driver sqlite|postgres] [-db path|dsn] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
		os.Exit(1)
	}

	var sqlDriver, dialect, dsn string
	switch *driver {
	case "sqlite":
		sqlDriver, dialect, dsn = "sqlite", "sqlite3", envOrDefault("DATABASE_PATH", "./data/bot.db")
	case "postgres":
		sqlDriver, dialect, dsn = "pgx", "postgres", os.Getenv("DATABASE_URL")
	default:
		log.Fatalf("unknown driver: %s", *driver)
	}
	if *dbPath != "" {
		dsn = *dbPath
	}
	if dsn == "" {
		log.Fatalf("no database given for driver %s", *driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
