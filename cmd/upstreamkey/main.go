// Command upstreamkey stores the generation-service API token in the
// database so the engine can pick it up without a redeploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"vidtrack/internal/infra"
	"vidtrack/internal/infra/credentials"
)

func main() {
	var keyFlag string
	flag.StringVar(&keyFlag, "key", "", "API key for the upstream service (falls back to UPSTREAM_API_KEY)")
	flag.Parse()

	_ = godotenv.Load()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("UPSTREAM_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "upstream API key is required via -key or UPSTREAM_API_KEY")
		os.Exit(1)
	}

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
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.SetUpstreamAPIKey(ctx, key); err != nil {
		fmt.Fprintf(os.Stderr, "store key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("upstream API key stored")
}
