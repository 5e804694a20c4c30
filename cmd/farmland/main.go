// Command farmland converts per-region farmland parcel datasets into feature
// stores and merges them into one "Farmland" collection.
//
// Usage:
//
//	farmland <input_root> <output_root> <worker_count>
//
// Everything else is configured through farmland.yaml or FARMLAND_*
// environment variables (see internal/config).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"farmland/internal/config"
	"farmland/internal/logger"
	"farmland/internal/store"

	// register all store providers; config selects one.
	_ "farmland/internal/store/all"
)

const argumentsError = "Arguments error"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one farmland run and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintln(stdout, argumentsError)
		return 1
	}
	workers, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Fprintf(stdout, "%s: worker_count %q is not a number\n", argumentsError, args[2])
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	cfg.InputRoot, cfg.OutputRoot, cfg.Workers = args[0], args[1], workers

	issues := config.Validate(cfg, store.Kinds())
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return 1
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	flush := setupMetrics(cfg.Metrics, log)
	defer flush()

	out, err := Run(ctx, cfg, log)
	printStatus(stdout, out)
	if err != nil {
		log.Error("run aborted", zap.Error(err))
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}
	if !out.OK() {
		return 1
	}
	return 0
}
