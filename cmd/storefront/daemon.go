package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/storefront/internal/api"
	"github.com/oriys/storefront/internal/cart"
	"github.com/oriys/storefront/internal/grpc"
	"github.com/oriys/storefront/internal/inventory"
	"github.com/oriys/storefront/internal/logging"
	"github.com/oriys/storefront/internal/maintenance"
	"github.com/oriys/storefront/internal/metrics"
	"github.com/oriys/storefront/internal/observability"
	"github.com/oriys/storefront/internal/pagecache"
	"github.com/oriys/storefront/internal/popularity"
	"github.com/oriys/storefront/internal/rowcache"
	"github.com/oriys/storefront/internal/session"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		logLevel string
		noLoops  bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Serve the HTTP API and run the maintenance loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc") {
				cfg.Daemon.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
				cfg.Observability.Logging.Level = logLevel
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace)
			}
			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				Version:     version,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				observability.Shutdown(shutdownCtx)
			}()

			s, keys, err := getStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			var source inventory.Source = inventory.StaticSource{}
			if cfg.Postgres.DSN != "" {
				pg, err := inventory.NewPostgresSource(ctx, cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer pg.Close()
				source = pg
			}

			ranker, err := popularity.NewRanker(s, keys, cfg.Popularity.HistorySize)
			if err != nil {
				return err
			}
			pages, err := pagecache.New(s, keys, ranker, pagecache.Config{
				TTL:          cfg.PageCache.TTL,
				CacheableTop: cfg.Popularity.CacheableTop,
			})
			if err != nil {
				return err
			}
			rows, err := rowcache.NewRefresher(s, keys, source, rowcache.Config{
				PollInterval: cfg.Rows.PollInterval,
			})
			if err != nil {
				return err
			}
			reaper, err := session.NewReaper(s, keys, session.ReaperConfig{
				Limit:     cfg.Sessions.Limit,
				BatchSize: cfg.Sessions.BatchSize,
				IdlePoll:  cfg.Sessions.IdlePoll,
				Carts:     cfg.Sessions.Carts,
			})
			if err != nil {
				return err
			}
			decayer, err := popularity.NewDecayer(s, keys, popularity.DecayConfig{
				Interval: cfg.Popularity.DecayInterval,
				KeepTop:  cfg.Popularity.KeepTop,
			})
			if err != nil {
				return err
			}

			var loops []maintenance.Loop
			if !noLoops {
				loops = []maintenance.Loop{reaper, decayer, rows}
			}
			runner := maintenance.NewRunner(loops...)
			runner.Start(ctx)
			defer runner.Stop()

			var httpServer *http.Server
			if cfg.Daemon.HTTPAddr != "" {
				httpServer = api.StartHTTPServer(cfg.Daemon.HTTPAddr, &api.Handler{
					Store:      s,
					Sessions:   session.NewRegistry(s, keys, ranker),
					Carts:      cart.New(s, keys),
					Popularity: ranker,
					Pages:      pages,
					Rows:       rows,
				})
			}

			var grpcServer *grpc.Server
			if cfg.Daemon.GRPCAddr != "" {
				grpcServer = grpc.NewServer(s, 5*time.Second)
				if err := grpcServer.Start(cfg.Daemon.GRPCAddr); err != nil {
					return err
				}
			}

			<-ctx.Done()
			logging.Op().Info("shutting down")

			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logging.Op().Warn("HTTP shutdown", "error", err)
				}
				cancel()
			}
			if grpcServer != nil {
				grpcServer.Stop()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP address (empty disables)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC health address (empty disables)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().BoolVar(&noLoops, "no-loops", false, "Serve only; run no maintenance loops")

	return cmd
}
