// Package main is the entrypoint for the rhive CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/canonica-labs/rhive/internal/cli"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version string
	commit  string
	date    string
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.New().Execute(ctx)
	stop()
	os.Exit(code)
}
