package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cachepledge.org/internal/migrate"
	"cachepledge.org/migrations"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("CACHEPLEDGE_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory of SQL seeds (default: embedded)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CACHEPLEDGE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	migrationsFS, err := source(*migrationsPath, "sql")
	if err != nil {
		log.Fatalf("migrations: %v", err)
	}
	seedsFS, err := source(*seedsPath, "seeds")
	if err != nil {
		log.Fatalf("seeds: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrationsFS, seedsFS)

	var applied []string
	switch flag.Arg(0) {
	case "up":
		applied, err = mgr.Up(ctx)
	case "seed":
		applied, err = mgr.Seed(ctx)
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			applied = []string{name}
		}
	case "status":
		applied, err = mgr.Status(ctx)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if errors.Is(err, migrate.ErrNothingApplied) {
		fmt.Println("nothing to do")
		return
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, name := range applied {
		fmt.Println(name)
	}
}

// source prefers an on-disk directory and falls back to the embedded set.
func source(dir, embedded string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(migrations.FS, embedded)
}
