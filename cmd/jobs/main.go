// Command jobs inspects the persisted job snapshot from the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"vidtrack/internal/adapter/repo"
	"vidtrack/internal/domain"
	"vidtrack/internal/infra"
)

func main() {
	var (
		taskFlag   string
		activeFlag bool
	)
	flag.StringVar(&taskFlag, "task", "", "show a single task by ID")
	flag.BoolVar(&activeFlag, "active", false, "only show pending and running tasks")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli")
	snapshots := repo.NewSnapshotRepository(infra.NewSQLRunner(pool, logger))
	jobs, err := snapshots.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load snapshot: %v\n", err)
		os.Exit(1)
	}

	var out []domain.BackgroundJob
	for _, job := range jobs {
		if taskFlag != "" && job.TaskID != taskFlag {
			continue
		}
		if activeFlag && job.Status.Terminal() {
			continue
		}
		out = append(out, job)
	}
	if taskFlag != "" && len(out) == 0 {
		fmt.Fprintf(os.Stderr, "task %s not found in snapshot\n", taskFlag)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
