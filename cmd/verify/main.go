// Package main is a one-shot chain verification tool for cron and CI use.
// It loads the server configuration, opens the ledger database, replays the
// hash chain, prints the result as JSON to stdout, and exits non-zero when
// the chain is invalid.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anphiad-sys/QuickServeLegal/internal/audit"
	"github.com/anphiad-sys/QuickServeLegal/internal/config"
	"github.com/anphiad-sys/QuickServeLegal/internal/db"
	"github.com/anphiad-sys/QuickServeLegal/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	startID := flag.Int64("start-id", 0, "first entry id to verify (0 = from genesis)")
	endID := flag.Int64("end-id", 0, "last entry id to verify (0 = to tail)")
	timeout := flag.Duration("timeout", 5*time.Minute, "verification timeout")
	flag.Parse()

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(2)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Open(ctx, db.Config{URL: cfg.DatabaseURL})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open database:", err)
		os.Exit(2)
	}
	defer pool.Close()

	ledger := audit.NewPostgresLedger(pool, logger)

	var start, end *int64
	if *startID > 0 {
		start = startID
	}
	if *endID > 0 {
		end = endID
	}

	result, err := audit.VerifyChain(ctx, ledger, start, end)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verification failed:", err)
		os.Exit(2)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, "failed to encode result:", err)
		os.Exit(2)
	}

	if !result.Valid {
		os.Exit(1)
	}
}
