package cmd

import (
	"github.com/urfave/cli/v3"
)

var version = "dev"

func App() *cli.Command {
	return &cli.Command{
		Name:    "whisperx-service",
		Version: version,
		Usage:   "GPU transcription service: queue audio uploads and run WhisperX or Parakeet against a single accelerator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("WX_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("WX_LOGGING_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
		},
	}
}
