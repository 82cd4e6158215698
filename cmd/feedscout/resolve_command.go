package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/feedscout/internal/resolver"
	"github.com/JakeFAU/feedscout/internal/server"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var publisher, jsonOut bool
	cmd := &cobra.Command{
		Use:   "resolve <externalId>",
		Short: "Resolve a feed id, title or slug to a registered feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *server.App) error {
				resolve := app.Resolver.Resolve
				if publisher {
					resolve = app.Resolver.ResolvePublisher
				}
				res, err := resolve(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("resolve %s: %w", args[0], err)
				}
				album, err := app.Resolver.Album(cmd.Context(), res)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resolver.Resolution{Feed: res.Feed, Album: album, Strategy: res.Strategy})
				}
				rows := [][]string{
					{"Feed ID", res.Feed.ID},
					{"URL", res.Feed.OriginalURL},
					{"Matched by", string(res.Strategy)},
					{"Title", album.Title},
					{"Artist", album.Artist},
					{"Tracks", strconv.Itoa(len(album.Tracks))},
				}
				printLine(cmd, "%s", renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&publisher, "publisher", false, "Resolve among publisher feeds")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the resolution as JSON")
	return cmd
}
