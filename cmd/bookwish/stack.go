// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/config"
	"github.com/autobrr/bookwish/internal/database"
	"github.com/autobrr/bookwish/internal/metrics"
	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/ranking"
	"github.com/autobrr/bookwish/internal/services/sources"
)

// stack is everything between the database and the HTTP/CLI surface.
type stack struct {
	settings *models.SettingsStore
	prowlarr *prowlarr.ConfigStore
	cache    *prowlarr.SourceCache
	client   *prowlarr.Client
	books    *models.BookRequestStore
	ranker   *ranking.Swappable
	filter   string
	metrics  *metrics.Manager
	service  *sources.Service
}

// newStack wires the stores and services. newMetrics may be nil, in which case nothing is recorded.
func newStack(cfg *config.AppConfig, db *database.DB, newMetrics func(*stack) *metrics.Manager) (*stack, error) {
	settings, err := models.NewSettingsStore(db, cfg.GetEncryptionKey(), prowlarr.KeyAPIKey)
	if err != nil {
		return nil, fmt.Errorf("settings store: %w", err)
	}

	ranker, err := ranking.NewDefault(cfg.Config.RankingFilter)
	if err != nil {
		return nil, fmt.Errorf("ranking filter: %w", err)
	}

	s := &stack{
		settings: settings,
		prowlarr: prowlarr.NewConfigStore(settings),
		cache:    prowlarr.NewSourceCache(),
		books:    models.NewBookRequestStore(db),
		ranker:   ranking.NewSwappable(ranker),
		filter:   cfg.Config.RankingFilter,
	}

	opts := []prowlarr.ClientOption{prowlarr.WithTimeout(cfg.ProwlarrTimeoutSeconds())}
	if newMetrics != nil {
		s.metrics = newMetrics(s)
		opts = append(opts, prowlarr.WithRecorder(s.metrics))
	}

	s.client = prowlarr.NewClient(s.prowlarr, s.cache, opts...)
	s.service = sources.NewService(sources.DefaultConfig(), s.prowlarr, s.client, s.cache, s.books, s.ranker)

	return s, nil
}

// reloadRanker swaps in a ranker for a changed filter. An invalid filter keeps the old one.
func (s *stack) reloadRanker(filter string) {
	if filter == s.filter {
		return
	}

	ranker, err := ranking.NewDefault(filter)
	if err != nil {
		log.Error().Err(err).Str("filter", filter).Msg("Invalid ranking filter, keeping previous")
		return
	}

	s.ranker.Store(ranker)
	s.filter = filter
	log.Info().Str("filter", filter).Msg("Ranking filter reloaded")
}
