package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-go/internal/config"
	"github.com/tonimelisma/alipan-go/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the drives to local hosts over HTTP",
		Long: `Serve the document tree over HTTP on the configured address. Listings
are filled in the background; hosts subscribe to /v1/notifications to learn
when a folder they asked for is ready. The config file is watched and
reloaded while serving.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "address to listen on (overrides [server] listen)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	return withApp(ctx, func(a *app) error {
		go func() {
			err := config.Watch(ctx, cfgHolder, logger, func(cfg *config.Config) {
				// Only the request rate applies without a restart.
				a.client.SetRateLimit(cfg.API.RequestsPerSecond)
			})
			if err != nil {
				logger.Warn("config reload disabled", slog.String("error", err.Error()))
			}
		}()

		// Drive ids are resolved up front so the first roots query is
		// answered from memory. Failure is not fatal: the host sees an
		// empty or loading roots listing until the user logs in.
		if _, err := a.provider.ResolveDrives(ctx); err != nil {
			logger.Warn("drives not resolved", slog.String("error", notLoggedInHint(err).Error()))
		}

		srv := server.New(a.provider, a.events, logger)

		return srv.ListenAndServe(ctx, a.cfg.Server.Listen)
	})
}
