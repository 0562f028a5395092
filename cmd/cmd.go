// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   usage,
		Value:   "text",
	}
}

func qualityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "quality",
			Aliases: []string{"q"},
			Usage:   "Format selection policy: auto, low or high (default from config)",
		},
		&cli.BoolFlag{
			Name:  "metered",
			Usage: "Treat the network as metered (auto quality picks the lowest bitrate)",
		},
		&cli.StringFlag{
			Name:  "playlist",
			Usage: "Playlist id sent as context with metadata requests",
		},
	}
}

// setupCommand initializes config, database and session credentials
func setupCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Create config, initialize the database, import a session cookie",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration file",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupDatabase,
			},
			{
				Name:  "cookie",
				Usage: "Import the session cookie from a browser cURL command",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command copied from the browser's network tab",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "File containing the copied cURL command",
					},
				},
				Action: r.SetupCookie,
			},
		},
	}
}

// resolveCommand resolves a single track
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a track id to a playable stream URL",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags:  append(qualityFlags(), formatFlag("Output format: text or json")),
		Action: r.Resolve,
	}
}

// probeCommand validates a stream URL
func probeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Check that a stream URL is reachable",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "url"},
		},
		Action: r.Probe,
	}
}

// profilesCommand lists the client profile registry
func profilesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "profiles",
		Usage:  "List client profiles in fallback order",
		Flags:  []cli.Flag{formatFlag("Output format: text or json")},
		Action: r.Profiles,
	}
}

// prefetchCommand bulk-resolves tracks
func prefetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "prefetch",
		Usage:     "Resolve tracks ahead of playback to warm the cache",
		ArgsUsage: "[track ids...]",
		Flags: append(qualityFlags(),
			&cli.StringFlag{
				Name:  "file",
				Usage: "File with one track id per line",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent resolutions (max 10)",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "rate",
				Usage: "Resolutions started per second",
				Value: 5,
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"o"},
				Usage:   "Write a report file (.json or .csv)",
			},
		),
		Action: r.Prefetch,
	}
}

// playCommand plays a queue with recovery
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Play tracks with automatic recovery from stream failures",
		ArgsUsage: "<track ids...>",
		Flags: append(qualityFlags(),
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the interactive now-playing view",
			},
			&cli.BoolFlag{
				Name:  "history",
				Usage: "Record playback events in the database",
				Value: true,
			},
		),
		Action: r.Play,
	}
}

// cacheCommand inspects the resolution cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage cached stream formats",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Show the cached format for a track",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{formatFlag("Output format: text or json")},
				Action: r.CacheGet,
			},
			{
				Name:      "invalidate",
				Usage:     "Drop cached formats",
				ArgsUsage: "<track ids...>",
				Action:    r.CacheInvalidate,
			},
			{
				Name:   "list",
				Usage:  "List unexpired cached formats (sqlite backend)",
				Flags:  []cli.Flag{formatFlag("Output format: text, json or csv")},
				Action: r.CacheList,
			},
			{
				Name:   "purge",
				Usage:  "Delete expired cached formats (sqlite backend)",
				Action: r.CachePurge,
			},
		},
	}
}

// historyCommand prints recorded playback events
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded playback events for a track or session",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "Session id to show instead of a track",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of events",
				Value: 50,
			},
			formatFlag("Output format: text, json or csv"),
		},
		Action: r.History,
	}
}
