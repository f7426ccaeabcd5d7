package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/petergeneric/whisperx-windows-service/internal/config"
	"github.com/petergeneric/whisperx-windows-service/internal/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the transcription service (HTTP API, scheduler and expiry sweeper)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key-file",
				Usage:   "Path to the API key file (bcrypt hashes, one per line)",
				Sources: cli.EnvVars("WX_AUTH_KEY_FILE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if v := cmd.String("key-file"); v != "" {
				cfg.Auth.KeyFile = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.Logging.Level = v
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log.Info().
				Str("host", cfg.Server.Host).
				Int("port", cfg.Server.Port).
				Int("profiles", len(cfg.Profiles)).
				Msg("starting transcription service")

			return server.Run(ctx, cfg)
		},
	}
}
