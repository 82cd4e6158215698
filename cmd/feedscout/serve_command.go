package main

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/feedscout/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd.Context(), func(app *server.App) error {
				return app.Run(cmd.Context())
			})
		},
	}
}
