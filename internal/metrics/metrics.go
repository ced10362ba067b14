// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bookwish"

// Manager owns the registry and implements prowlarr.Recorder.
type Manager struct {
	registry *prometheus.Registry

	searches      *prometheus.CounterVec
	searchResults prometheus.Histogram
	skipped       *prometheus.CounterVec
	downloads     *prometheus.CounterVec
}

// NewManager registers every collector. inFlight and cacheEntries are sampled on scrape.
func NewManager(inFlight func() int, cacheEntries func() int) *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	m := &Manager{
		registry: registry,
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prowlarr",
			Name:      "searches_total",
			Help:      "Source searches by outcome (cache_hit, network, error)",
		}, []string{"outcome"}),
		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "prowlarr",
			Name:      "search_results",
			Help:      "Number of normalized sources returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prowlarr",
			Name:      "skipped_results_total",
			Help:      "Search results dropped because of an unknown protocol",
		}, []string{"protocol"}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prowlarr",
			Name:      "downloads_total",
			Help:      "Download triggers by result",
		}, []string{"ok"}),
	}

	if inFlight != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sources",
			Name:      "queries_in_flight",
			Help:      "Source queries currently running",
		}, func() float64 { return float64(inFlight()) })
	}

	if cacheEntries != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sources",
			Name:      "cache_entries",
			Help:      "Queries with a cached source list",
		}, func() float64 { return float64(cacheEntries()) })
	}

	return m
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) SearchCompleted(outcome string, results int) {
	m.searches.WithLabelValues(outcome).Inc()
	if outcome != "error" {
		m.searchResults.Observe(float64(results))
	}
}

func (m *Manager) ResultSkipped(protocol string) {
	if protocol == "" {
		protocol = "unknown"
	}
	m.skipped.WithLabelValues(protocol).Inc()
}

func (m *Manager) DownloadTriggered(ok bool) {
	m.downloads.WithLabelValues(strconv.FormatBool(ok)).Inc()
}
