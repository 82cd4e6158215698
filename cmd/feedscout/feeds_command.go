package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/registry"
	"github.com/JakeFAU/feedscout/internal/server"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Inspect and edit the feed registry",
	}
	cmd.AddCommand(newFeedsListCommand(ctx))
	cmd.AddCommand(newFeedsAddCommand(ctx))
	cmd.AddCommand(newFeedsRemoveCommand(ctx))
	return cmd
}

func newFeedsListCommand(ctx *commandContext) *cobra.Command {
	var (
		status   string
		kind     string
		priority string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := buildFilter(status, kind, priority)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(app *server.App) error {
				feeds, err := app.Registry.GetAll(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("list feeds: %w", err)
				}
				if jsonOut {
					return writeJSON(cmd, feeds)
				}
				if len(feeds) == 0 {
					printLine(cmd, "No feeds registered")
					return nil
				}
				rows := make([][]string, 0, len(feeds))
				for _, item := range feeds {
					rows = append(rows, []string{
						item.ID,
						truncate(item.Title, 40),
						string(item.Kind),
						string(item.Priority),
						string(item.Status),
						string(item.Source),
					})
				}
				printLine(cmd, "%s", renderTable(
					[]string{"ID", "Title", "Type", "Priority", "Status", "Source"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, inactive)")
	cmd.Flags().StringVar(&kind, "type", "", "Filter by type (album, publisher)")
	cmd.Flags().StringVar(&priority, "priority", "", "Filter by priority (core, extended, low)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print feeds as JSON")
	return cmd
}

func buildFilter(status, kind, priority string) (registry.Filter, error) {
	var filter registry.Filter
	var err error
	if status != "" {
		if filter.Status, err = feed.ParseStatus(status); err != nil {
			return registry.Filter{}, err
		}
	}
	if kind != "" {
		if filter.Kind, err = feed.ParseKind(kind); err != nil {
			return registry.Filter{}, err
		}
	}
	if priority != "" {
		if filter.Priority, err = feed.ParsePriority(priority); err != nil {
			return registry.Filter{}, err
		}
	}
	return filter, nil
}

func newFeedsAddCommand(ctx *commandContext) *cobra.Command {
	var kind, title, priority string
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a feed manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *server.App) error {
				added, err := app.Registry.Add(cmd.Context(), feed.Feed{
					OriginalURL: args[0],
					Kind:        feed.Kind(kind),
					Title:       title,
					Priority:    feed.Priority(priority),
					Source:      feed.SourceManual,
				})
				if err != nil {
					return fmt.Errorf("add feed: %w", err)
				}
				printLine(cmd, "Registered %s (%s)", added.ID, added.OriginalURL)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "Feed type (album, publisher)")
	cmd.Flags().StringVar(&title, "title", "", "Display title")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority (core, extended, low)")
	return cmd
}

func newFeedsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a registered feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *server.App) error {
				if err := app.Registry.Remove(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("remove feed: %w", err)
				}
				printLine(cmd, "Removed %s", args[0])
				return nil
			})
		},
	}
}
