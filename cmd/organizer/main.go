// Command organizer runs the file organization pipeline from the shell.
// Results are printed as JSON on stdout; logs go to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fruitsalade/fruitsalade/organizer/internal/app"
	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return 1
	}

	level := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	if err := logging.Init(logging.Config{
		Level:      level,
		Format:     "console",
		OutputPath: "stderr",
	}); err != nil {
		fmt.Fprintln(os.Stderr, "logging init error:", err)
		return 1
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer a.Close()

	if err := newCLIApp(a).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}
	return 0
}
