package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"craftdeck/internal/api"
	"craftdeck/internal/app"
	"craftdeck/internal/config"
	"craftdeck/internal/logging"
	"craftdeck/internal/version"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	configDir string
	port      int
	logLevel  string
	noAuth    bool
)

var rootCmd = &cobra.Command{
	Use:          "craftdeck-devserver",
	Short:        "Local backend for the craftdeck dashboard",
	Version:      version.Current,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func run(cmd *cobra.Command) error {
	if configDir == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return fmt.Errorf("error getting user config directory: %w", err)
		}
		configDir = dir
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if noAuth {
		cfg.AuthRequired = false
	}

	log := logging.Setup(cfg.LogLevel, isatty.IsTerminal(os.Stderr.Fd()))
	log.Info().
		Str("version", version.Current).
		Str("database", cfg.DatabasePath).
		Str("servers", cfg.ServersPath).
		Str("backups", cfg.BackupsPath).
		Str("runtimes", cfg.RuntimesPath).
		Bool("auth", cfg.AuthRequired).
		Msg("Starting devserver")

	container, err := app.New(cfg, config.LoadOrGenerateSecret(configDir), log)
	if err != nil {
		return err
	}
	defer container.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container.Run(ctx)
	return api.NewAPIServer(container).Start(ctx, fmt.Sprintf(":%d", cfg.Port))
}

func main() {
	rootCmd.Flags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml, the database and the session secret")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port, overrides config.yaml")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error")
	rootCmd.Flags().BoolVar(&noAuth, "no-auth", false, "serve without requiring a session")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
