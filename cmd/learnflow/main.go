// Package main provides the entry point for the learnflow command-line client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
