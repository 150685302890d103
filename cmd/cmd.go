// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func directionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "direction",
			Aliases: []string{"d"},
			Usage:   "Sync direction as <source>-to-<target>",
			Value:   "spotify-to-youtube",
		},
		&cli.StringFlag{
			Name:     "source-id",
			Usage:    "Source playlist ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "target-id",
			Usage:    "Target playlist ID",
			Required: true,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: text, markdown, csv or json",
			Value:   "text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write output to a file instead of stdout",
		},
	}
}

func setupCommand(r *Runner) *cli.Command {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   configPath,
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the run history database and apply migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag},
				Action: r.RollbackDatabase,
			},
		},
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Inspect platform credentials",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Check that each platform is configured and reachable",
				Action: r.AuthStatus,
			},
		},
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Compare and synchronize playlists",
		Commands: []*cli.Command{
			{
				Name:   "compare",
				Usage:  "Show matched, missing and ambiguous tracks without writing",
				Flags:  append(directionFlags(), outputFlags()...),
				Action: r.SyncCompare,
			},
			{
				Name:  "run",
				Usage: "Add missing tracks to the target playlist",
				Flags: append(append(directionFlags(), outputFlags()...),
					&cli.IntFlag{
						Name:  "max-sync",
						Usage: "Maximum operations to plan (0 uses the configured default)",
					},
					&cli.BoolFlag{
						Name:  "mirror",
						Usage: "Also remove target tracks that are missing on the source",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Confirm destructive operations",
					},
				),
				Action: r.SyncRun,
			},
			{
				Name:  "runs",
				Usage: "Inspect recorded sync runs",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List recent runs, newest first",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "limit",
								Usage: "Maximum number of runs to list",
								Value: 20,
							},
							&cli.BoolFlag{
								Name:  "json",
								Usage: "Output raw JSON",
							},
						},
						Action: r.RunsList,
					},
					{
						Name:      "show",
						Usage:     "Show a run and its operations",
						Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
						Flags:     outputFlags(),
						Action:    r.RunsShow,
					},
				},
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sync HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to [server] host:port)",
			},
		},
		Action: r.Serve,
	}
}
