// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlags(prettyDefault bool) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: prettyDefault,
		},
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file, initialize the database and run migrations",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the podcast directory",
		ArgsUsage: "<term>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "term"},
		},
		Flags:  jsonFlags(false),
		Action: r.Search,
	}
}

func subscribedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "subscribed",
		Aliases: []string{"subs"},
		Usage:   "List subscribed podcasts",
		Flags:   jsonFlags(false),
		Action:  r.Subscribed,
	}
}

func toggleCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "toggle",
		Usage:     "Subscribe to or unsubscribe from a podcast",
		ArgsUsage: "<id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Action: r.Toggle,
	}
}

func deleteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a podcast and its episodes",
		ArgsUsage: "<id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Action: r.Delete,
	}
}

func showCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a podcast feed, refreshing it when stale",
		ArgsUsage: "<feed-url>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "feed-url"},
		},
		Flags: append(jsonFlags(false), &cli.IntFlag{
			Name:  "limit",
			Usage: "Number of episodes to list",
			Value: 10,
		}),
		Action: r.Show,
	}
}

func episodesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "episodes",
		Usage:     "Page through a feed's episodes, newest first",
		ArgsUsage: "<feed-url>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "feed-url"},
		},
		Flags: append(jsonFlags(false),
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Episodes per page (defaults to feeds.page_size)",
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Maximum number of pages to read",
				Value: 1,
			},
		),
		Action: r.Episodes,
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "sync",
		Aliases: []string{"refresh"},
		Usage:   "Refresh every subscribed feed",
		Action:  r.Sync,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a podcast feed",
		ArgsUsage: "<feed-url>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "feed-url"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: text, md, csv or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path (directory for md, base path for csv)",
			},
		},
		Action: r.Export,
	}
}

func openCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Open an episode's media URL with the system handler",
		ArgsUsage: "<guid>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "guid"},
		},
		Action: r.Open,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Launch the interactive terminal UI",
		Action: r.TUI,
	}
}
