package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/config"
	"github.com/LordSimal/gin-sentry/internal/server"
)

type flags struct {
	configFile string
	envFile    string
	port       string
	dev        bool
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Demo gin service with error tracking and performance monitoring.",
		Long: `Runs a gin service with the Sentry plugin installed. Requests open ` +
			`transactions, queries become spans and errors are captured with ` +
			`their query breadcrumbs. Without SENTRY_DSN the plugin is inert.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "YAML or TOML config file laid over the environment")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.Flags().StringVarP(&f.port, "port", "p", "", "server port (overrides PORT)")
	cmd.Flags().BoolVar(&f.dev, "dev", false, "development mode: console logs at debug level")

	return cmd
}

func loadConfig(f *flags) (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.configFile != "" {
		if err := config.LoadFile(f.configFile, cfg); err != nil {
			return nil, err
		}
	}
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if f.dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
