package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:    "spotdown",
		Usage:   "Download Spotify playlists as tagged MP3 bundles",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				Sources: cli.EnvVars("CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			submitCommand(),
			sweepCommand(),
			failuresCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "spotdown: %v\n", err)
		os.Exit(1)
	}
}
