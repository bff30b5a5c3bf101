package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gdscnexus/nexus-chat/internal/app"
	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/log"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "nexus-chat",
		Short:         "Real-time chat server and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(newServeCmd(), newChatCmd(), newSmokeCmd(), newAdminCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nexus-chat: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves config and returns it with a logger built from it.
func loadConfig(overrides config.Config) (*config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info", "console")
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return &cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	var flags config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting nexus-chat server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Addr, "addr", "", "HTTP listen address")
	f.DurationVar(&flags.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	f.DurationVar(&flags.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	f.StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&flags.LogFormat, "log-format", "", "log format (console or json)")
	f.StringVar(&flags.Database.Driver, "db-driver", "", "database driver (sqlite or postgres)")
	f.StringVar(&flags.Database.Path, "db-path", "", "sqlite database path")
	f.StringVar(&flags.Database.URL, "db-url", "", "postgres connection url")
	return cmd
}
