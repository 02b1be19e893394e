package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/mithril/cmd"
	"github.com/illarion/mithril/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer session.Purge()

	if err := cmd.Execute(ctx); err != nil {
		cmd.HandleError(err)
	}
}
