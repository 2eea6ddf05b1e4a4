package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg := cfgHolder.Config()

	if flagJSON {
		shown := *cfg
		if shown.API.ClientSecret != "" {
			shown.API.ClientSecret = "<redacted>"
		}

		return printJSON(cmd.OutOrStdout(), &shown)
	}

	return config.RenderEffective(cfg, cfgHolder.Path(), cmd.OutOrStdout())
}
