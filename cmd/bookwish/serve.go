// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/bookwish/internal/api"
	"github.com/autobrr/bookwish/internal/buildinfo"
	"github.com/autobrr/bookwish/internal/config"
	"github.com/autobrr/bookwish/internal/database"
	"github.com/autobrr/bookwish/internal/domain"
	"github.com/autobrr/bookwish/internal/metrics"
)

const (
	shutdownTimeout = 30 * time.Second
	pprofAddr       = "localhost:6060"
)

type serveOptions struct {
	configDir string
	dataDir   string
	logPath   string
	pprof     bool
}

func RunServeCommand() *cobra.Command {
	var opts serveOptions

	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
			defer stop()

			return serve(ctx, opts)
		},
	}

	addConfigDirFlag(command, &opts.configDir)
	addDataDirFlag(command, &opts.dataDir)
	command.Flags().StringVar(&opts.logPath, "log-path", "", "also write logs to this file")
	command.Flags().BoolVar(&opts.pprof, "pprof", false, "serve pprof on "+pprofAddr)

	return command
}

func serve(ctx context.Context, opts serveOptions) error {
	cfg, err := config.New(opts.configDir)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if opts.dataDir != "" {
		cfg.SetDataDir(opts.dataDir)
	}
	if opts.logPath != "" {
		cfg.Config.LogPath = opts.logPath
	}
	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Str("database", cfg.GetDatabasePath()).Msg("Starting bookwish")

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()

	svcs, err := newStack(cfg, db, newMetricsManager)
	if err != nil {
		return err
	}
	defer svcs.cache.Close()
	defer svcs.service.Close()

	cfg.RegisterReloadListener(func(c *domain.Config) {
		svcs.reloadRanker(c.RankingFilter)
	})
	cfg.Watch()

	if !svcs.prowlarr.IsValid(ctx) {
		log.Warn().Msg("Prowlarr is not configured yet, use `bookwish set-prowlarr` or PUT /api/settings/prowlarr")
	}

	httpServer := api.NewServer(&api.Dependencies{
		Config:         cfg,
		Version:        buildinfo.Version,
		DB:             db,
		Sources:        svcs.service,
		Cache:          svcs.cache,
		ProwlarrConfig: svcs.prowlarr,
		Books:          svcs.books,
	})

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ignoreClosed(httpServer.ListenAndServe())
	})

	var metricsServer *metrics.MetricsServer
	if cfg.Config.MetricsEnabled {
		metricsServer = metrics.NewMetricsServer(svcs.metrics, cfg.Config.MetricsHost, cfg.Config.MetricsPort, cfg.Config.MetricsBasicAuthUsers)
		group.Go(func() error {
			return ignoreClosed(metricsServer.ListenAndServe())
		})
	}

	if opts.pprof {
		go func() {
			log.Info().Str("addr", pprofAddr).Msg("Serving pprof at /debug/pprof/")
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Error().Err(err).Msg("pprof server stopped")
			}
		}()
	}

	group.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if metricsServer != nil {
			if err := metricsServer.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close metrics server")
			}
		}
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "graceful shutdown")
	})

	if err := group.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}

// newMetricsManager samples the service through the stack, which is fully built before the first scrape.
func newMetricsManager(s *stack) *metrics.Manager {
	return metrics.NewManager(
		func() int { return s.service.InFlightCount() },
		s.cache.Len,
	)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
