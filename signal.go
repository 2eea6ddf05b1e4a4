package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
)

// shutdownContext is canceled by the first SIGINT or SIGTERM. The handler
// is then removed, so a second signal kills the process if draining hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		if parent.Err() == nil {
			logger.Info("shutting down; signal again to exit immediately")
		}
	}()

	return ctx
}
