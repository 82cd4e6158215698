package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/feedscout/internal/discovery"
	"github.com/JakeFAU/feedscout/internal/feed"
	"github.com/JakeFAU/feedscout/internal/server"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var (
		depth       int
		noRecursive bool
		autoAdd     bool
		priority    string
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "discover <url>",
		Short: "Crawl the podroll graph of a seed feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := discovery.Options{
				Recursive: cfg.Discovery.RecursiveDefault,
				MaxDepth:  cfg.Discovery.DefaultDepth,
				AutoAdd:   autoAdd,
			}
			if cmd.Flags().Changed("depth") {
				opts.MaxDepth = depth
			}
			if cmd.Flags().Changed("no-recursive") {
				opts.Recursive = !noRecursive
			}
			rawPriority := cfg.Discovery.DefaultPriority
			if priority != "" {
				rawPriority = priority
			}
			opts.DefaultPriority, err = feed.ParsePriority(rawPriority)
			if err != nil {
				return err
			}

			return ctx.withApp(cmd.Context(), func(app *server.App) error {
				report, err := app.Crawler.Discover(cmd.Context(), args[0], opts)
				if err != nil {
					return fmt.Errorf("discover %s: %w", args[0], err)
				}
				if jsonOut {
					return writeJSON(cmd, report)
				}
				renderReport(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum podroll depth (defaults to discovery.default_depth)")
	cmd.Flags().BoolVar(&noRecursive, "no-recursive", false, "Visit only the seed feed")
	cmd.Flags().BoolVar(&autoAdd, "auto-add", false, "Register newly discovered feeds")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority for auto-added feeds (core, extended, low)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	return cmd
}

func renderReport(cmd *cobra.Command, report discovery.Report) {
	color := shouldColorize(cmd.OutOrStdout())
	rows := make([][]string, 0, len(report.Records))
	for _, record := range report.Records {
		rows = append(rows, []string{
			strconv.Itoa(record.Depth),
			truncate(record.URL, 60),
			truncate(record.Title, 40),
			string(record.Source),
			recordState(record, color),
		})
	}
	printLine(cmd, "%s", renderTable(
		[]string{"Depth", "URL", "Title", "Source", "State"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	s := report.Stats
	printLine(cmd, "run %s: %d feeds, %d new, %d existing, %d errors, %d added",
		report.RunID, s.Total, s.New, s.Existing, s.Errors, s.Added)
}

func recordState(record discovery.Record, color bool) string {
	switch {
	case record.Error != "":
		return colorize("error: "+truncate(record.Error, 40), ansiRed, color)
	case record.AlreadyExists:
		return colorize("existing", ansiYellow, color)
	default:
		return colorize("new", ansiGreen, color)
	}
}
