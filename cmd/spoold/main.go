// Command spoold runs the mail spool HTTP drop box.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(run).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
