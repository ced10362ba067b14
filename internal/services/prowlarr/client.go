// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/buildinfo"
)

const (
	searchPath         = "/api/v1/search"
	searchLimit        = 100
	maxResponseBytes   = 32 << 20
	maxErrorBodyBytes  = 64 << 10
	defaultTimeoutSecs = 30
)

// Search outcomes reported to the Recorder.
const (
	OutcomeCacheHit = "cache_hit"
	OutcomeNetwork  = "network"
	OutcomeError    = "error"
)

// Recorder receives client events for metrics.
type Recorder interface {
	SearchCompleted(outcome string, results int)
	ResultSkipped(protocol string)
	DownloadTriggered(ok bool)
}

type noopRecorder struct{}

func (noopRecorder) SearchCompleted(string, int) {}
func (noopRecorder) ResultSkipped(string)        {}
func (noopRecorder) DownloadTriggered(bool)      {}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout in seconds. Non-positive values keep the default.
func WithTimeout(seconds int) ClientOption {
	return func(c *Client) {
		if seconds > 0 {
			c.httpClient = &http.Client{Timeout: time.Duration(seconds) * time.Second}
		}
	}
}

func WithRecorder(recorder Recorder) ClientOption {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// Client talks to the Prowlarr search API and caches normalized results per query.
type Client struct {
	config     *ConfigStore
	cache      *SourceCache
	httpClient *http.Client
	recorder   Recorder
}

func NewClient(config *ConfigStore, cache *SourceCache, opts ...ClientOption) *Client {
	c := &Client{
		config:     config,
		cache:      cache,
		httpClient: &http.Client{Timeout: defaultTimeoutSecs * time.Second},
		recorder:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Config() *ConfigStore {
	return c.config
}

func (c *Client) Cache() *SourceCache {
	return c.cache
}

// Search returns normalized sources for query, served from cache unless forceRefresh is set.
// indexerIDs is only sent when non-nil.
func (c *Client) Search(ctx context.Context, query string, indexerIDs []int, forceRefresh bool) ([]Source, error) {
	if err := c.config.Validate(ctx); err != nil {
		return nil, err
	}

	if query == "" {
		return []Source{}, nil
	}

	settings, err := c.config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prowlarr settings: %w", err)
	}

	if !forceRefresh {
		if cached, ok := c.cache.Get(settings.SourceTTL, query); ok {
			log.Debug().Str("query", query).Int("results", len(cached)).Msg("Using cached prowlarr sources")
			c.recorder.SearchCompleted(OutcomeCacheHit, len(cached))
			return cached, nil
		}
	}

	sources, err := c.search(ctx, settings, query, indexerIDs)
	if err != nil {
		c.recorder.SearchCompleted(OutcomeError, 0)
		return nil, err
	}

	c.cache.Set(query, sources)
	c.recorder.SearchCompleted(OutcomeNetwork, len(sources))

	return sources, nil
}

func (c *Client) search(ctx context.Context, settings Settings, query string, indexerIDs []int) ([]Source, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("type", "search")
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Set("offset", "0")
	for _, category := range settings.Categories {
		params.Add("categories", strconv.Itoa(category))
	}
	for _, id := range indexerIDs {
		params.Add("indexerIds", strconv.Itoa(id))
	}

	searchURL := settings.BaseURL + searchPath + "?" + params.Encode()

	log.Info().Str("url", searchURL).Msg("Querying prowlarr")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build prowlarr search request: %w", err)
	}
	c.setHeaders(req, settings.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prowlarr search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: searchURL}
	}

	var results []searchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&results); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: searchURL, Err: fmt.Errorf("decode response: %w", err)}
	}

	sources := make([]Source, 0, len(results))
	for _, result := range results {
		source, ok, err := c.normalize(result)
		if err != nil {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, URL: searchURL, Err: err}
		}
		if ok {
			sources = append(sources, source)
		}
	}

	log.Debug().
		Str("query", query).
		Int("received", len(results)).
		Int("kept", len(sources)).
		Msg("Prowlarr search completed")

	return sources, nil
}

func (c *Client) normalize(result searchResult) (Source, bool, error) {
	protocol := Protocol(result.Protocol)
	if !protocol.Valid() {
		log.Warn().
			Str("protocol", result.Protocol).
			Str("guid", result.GUID).
			Str("indexer", result.Indexer).
			Msg("Skipping source with unknown protocol")
		c.recorder.ResultSkipped(result.Protocol)
		return Source{}, false, nil
	}

	published, err := parsePublishDate(result.PublishDate)
	if err != nil {
		return Source{}, false, fmt.Errorf("source %s: %w", result.GUID, err)
	}

	flags := make([]string, 0, len(result.IndexerFlags))
	for _, flag := range result.IndexerFlags {
		flags = append(flags, strings.ToLower(flag))
	}

	source := Source{
		Protocol:     protocol,
		GUID:         result.GUID,
		IndexerID:    result.IndexerID,
		Indexer:      result.Indexer,
		Title:        result.Title,
		Size:         result.Size,
		InfoURL:      result.InfoURL,
		DownloadURL:  result.DownloadURL,
		MagnetURL:    result.MagnetURL,
		PublishDate:  published,
		IndexerFlags: flags,
	}

	switch protocol {
	case ProtocolTorrent:
		source.Torrent = &TorrentInfo{Seeders: result.Seeders, Leechers: result.Leechers}
	case ProtocolUsenet:
		source.Usenet = &UsenetInfo{Grabs: result.Grabs}
	}

	return source, true, nil
}

var publishDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parsePublishDate accepts the ISO-8601 shapes Prowlarr emits. Values without a zone are UTC.
func parsePublishDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range publishDateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse publish date: %w", lastErr)
}

// StartDownload asks Prowlarr to grab guid from indexerID and returns the raw outcome.
// Only transport failures are returned as errors.
func (c *Client) StartDownload(ctx context.Context, guid string, indexerID int) (*DownloadResponse, error) {
	if err := c.config.Validate(ctx); err != nil {
		return nil, err
	}

	settings, err := c.config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prowlarr settings: %w", err)
	}

	payload, err := json.Marshal(downloadRequest{GUID: guid, IndexerID: indexerID})
	if err != nil {
		return nil, err
	}

	downloadURL := settings.BaseURL + searchPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, downloadURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build prowlarr download request: %w", err)
	}
	c.setHeaders(req, settings.APIKey)
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("guid", guid).Int("indexer_id", indexerID).Msg("Starting download")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prowlarr download: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read prowlarr download response: %w", err)
	}

	out := &DownloadResponse{StatusCode: resp.StatusCode, Body: body}
	c.recorder.DownloadTriggered(out.OK())

	if out.OK() {
		log.Debug().Str("guid", guid).Msg("Download successfully started")
	} else {
		log.Error().
			Str("guid", guid).
			Int("indexer_id", indexerID).
			Int("status", resp.StatusCode).
			Msg("Failed to start download")
	}

	return out, nil
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("X-Api-Key", apiKey)
	req.Header.Set("User-Agent", buildinfo.UserAgent)
}
