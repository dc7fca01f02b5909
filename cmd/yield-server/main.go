package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentuity/yieldcache/cache"
	"github.com/agentuity/yieldcache/config"
	"github.com/agentuity/yieldcache/env"
	"github.com/agentuity/yieldcache/logger"
	"github.com/agentuity/yieldcache/server"
	"github.com/agentuity/yieldcache/yield"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const serviceName = "yield-server"

var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Serve cached yield history for pools",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return env.LoadEnvFile(envFile)
		},
	}
	root.PersistentFlags().String("env-file", ".env", "Load environment variables from this file if it exists")
	root.PersistentFlags().String("log-level", "", "The log level (trace, debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "Also append logs to this file")
	root.PersistentFlags().Bool("no-telemetry", false, "Disable OTLP export")
	root.PersistentFlags().String("otlp-url", "", "The OTLP collector url")
	root.PersistentFlags().String("otlp-shared-secret", "", "The shared secret used to sign OTLP bearer tokens")
	root.PersistentFlags().String("otlp-token-ttl", "", "Expire the OTLP bearer token after this long (e.g. 1d)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newIngestCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(env.FlagOrEnv(cmd, "config", env.Prefix+"CONFIG", ""))
	if err != nil {
		return cfg, err
	}
	cfg.Database = env.FlagOrEnv(cmd, "db", env.Prefix+"DATABASE", cfg.Database)
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, shutdown, err := env.NewTelemetry(ctx, cmd, serviceName)
			if err != nil {
				return err
			}
			defer shutdown()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Listen = env.FlagOrEnv(cmd, "listen", env.Prefix+"LISTEN", cfg.Listen)
			if val := env.FlagOrEnv(cmd, "stale-after", env.Prefix+"STALE_AFTER", ""); val != "" {
				d, err := config.ParseDuration(val)
				if err != nil {
					return errors.Wrap(err, "parsing stale-after")
				}
				cfg.Cache.StaleAfter = d
			}
			if env.BoolFlagOrEnv(cmd, "coalesce", env.Prefix+"COALESCE") {
				cfg.Cache.Coalesce = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().String("db", "", "Path to the SQLite database")
	cmd.Flags().String("listen", "", "The address to listen on")
	cmd.Flags().String("stale-after", "", "How long a cached series stays fresh (e.g. 2h, 1d)")
	cmd.Flags().Bool("coalesce", false, "Collapse concurrent misses for one key into a single query")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log logger.Logger) error {
	repo, err := yield.OpenRepository(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	tbl := cache.New(append(cfg.CacheOptions(), cache.WithLogger(log.WithPrefix("[cache]")))...)
	opts := []yield.ServiceOption{yield.WithLogger(log.WithPrefix("[yield]"))}
	for ns, d := range cfg.Cache.Namespaces {
		opts = append(opts, yield.WithStaleAfter(ns, d.Std()))
	}
	svc := yield.NewService(tbl, repo, opts...)
	srv := server.New(svc, server.WithLogger(log.WithPrefix("[http]")), server.WithStats(tbl))

	log.Info("listening on %s (database %s, staleAfter %s)", cfg.Listen, cfg.Database, cfg.Cache.StaleAfter.Std())
	return srv.ListenAndServe(ctx, cfg.Listen)
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Load a JSON array of yield rows into the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := env.NewLogger(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "opening rows")
				}
				defer f.Close()
				in = f
			}
			var rows []yield.Row
			if err := json.NewDecoder(in).Decode(&rows); err != nil {
				return errors.Wrap(err, "decoding rows")
			}
			repo, err := yield.OpenRepository(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Insert(cmd.Context(), rows...); err != nil {
				return err
			}
			log.Info("ingested %d rows into %s", len(rows), cfg.Database)
			return nil
		},
	}
	cmd.Flags().String("config", "", "Path to a YAML config file")
	cmd.Flags().String("db", "", "Path to the SQLite database")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
