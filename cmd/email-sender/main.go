// Package main is the entry point for email-sender.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/email-sender/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		slog.Error("email-sender failed", "error", err)
		stop()
		os.Exit(1)
	}
}
