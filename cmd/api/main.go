package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"disputeflow/config"
	"disputeflow/db"
	"disputeflow/money"
	"disputeflow/postgres"
	"disputeflow/principal"
)

const programName = "disputeflow"

const shutdownTimeout = 15 * time.Second

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	addSource := false
	if globalFlags.debug || cfg.Debug {
		logLevel = slog.LevelDebug
		addSource = true
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     logLevel,
		}),
	).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	_, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "component", programName)
	}))
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}
	return logger
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer a.Close()

			worker, err := a.outboxWorker(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap outbox worker: %w", err)
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           a.server.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("http server listening", "addr", cfg.HTTPAddr, "storage", cfg.Storage)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := newLogger(cfg)
			if cfg.Storage != config.StoragePostgres {
				return fmt.Errorf("migrate requires postgres storage, got %q", cfg.Storage)
			}

			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.MaxDBConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := postgres.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "versions", applied, "count", len(applied))
			return nil
		},
	}
}

func creditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "credit <account> <amount>",
		Short: "Fund an account in the configured denomination",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := newLogger(cfg)

			account, err := principal.Parse(args[0])
			if err != nil {
				return err
			}
			amount, err := money.Parse(args[1])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer a.Close()

			balance, err := a.server.assets.Credit(cmd.Context(), account, amount)
			if err != nil {
				return err
			}
			logger.Info("account credited", "account", account.String(), "amount", amount.String(), "balance", balance.String())
			return nil
		},
	}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Campaign dispute arbitration service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(creditCommand())
	return rootCmd
}

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
