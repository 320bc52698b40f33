// Command coworking drives a member session against the coworking API from
// the terminal. The session is kept in the configured storage between runs.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const appName = "coworking"

func main() {
	app := &cli.App{
		Name:  appName,
		Usage: "Coworking member session client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
			},
			&cli.StringFlag{
				Name:    "space",
				Aliases: []string{"s"},
				Usage:   "Space slug (defaults to the session's space, then COWORKING_SPACE)",
			},
			&cli.StringFlag{
				Name:  "metrics_file",
				Usage: "Write client metrics in text exposition format to this file on exit",
			},
		},
		Commands: commands(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
