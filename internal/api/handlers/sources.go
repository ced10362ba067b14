// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/sources"
)

// SourceService is the orchestrator surface the handler drives.
type SourceService interface {
	QuerySources(ctx context.Context, asin string, opts sources.QueryOptions) (*sources.QueryResult, error)
	DownloadSource(ctx context.Context, asin, guid string, indexerID int) error
	RefreshAsync(asin string, force bool)
	IsQuerying(asin string) bool
	InFlight() []string
	FlushCache()
}

type CacheStatsProvider interface {
	Stats() prowlarr.CacheStats
}

type SourcesHandler struct {
	service SourceService
	cache   CacheStatsProvider
}

func NewSourcesHandler(service SourceService, cache CacheStatsProvider) *SourcesHandler {
	return &SourcesHandler{
		service: service,
		cache:   cache,
	}
}

type DownloadSourceRequest struct {
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexerId"`
}

type SourceStatusResponse struct {
	ASIN     string `json:"asin"`
	Querying bool   `json:"querying"`
}

type InFlightResponse struct {
	ASINs []string `json:"asins"`
}

func (h *SourcesHandler) Routes(r chi.Router) {
	r.Route("/sources", func(r chi.Router) {
		r.Get("/cache", h.GetCacheStats)
		r.Delete("/cache", h.FlushCache)
		r.Get("/in-flight", h.ListInFlight)

		r.Route("/{asin}", func(r chi.Router) {
			r.Get("/", h.GetSources)
			r.Get("/status", h.GetStatus)
			r.Post("/refresh", h.Refresh)
			r.Post("/auto-download", h.AutoDownload)
			r.Post("/download", h.Download)
		})
	})
}

func asinParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "asin"))
}

func boolQuery(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// sourcesETag changes whenever the ranked list or the fulfilment state changes.
func sourcesETag(result *sources.QueryResult) string {
	d := xxhash.New()
	for _, source := range result.Sources {
		_, _ = d.WriteString(source.GUID)
		_, _ = d.WriteString("\x00")
	}
	if result.Book != nil && result.Book.Downloaded {
		_, _ = d.WriteString("downloaded")
	}
	return fmt.Sprintf(`"%016x"`, d.Sum64())
}

// GetSources returns the ranked sources for a requested book.
func (h *SourcesHandler) GetSources(w http.ResponseWriter, r *http.Request) {
	asin := asinParam(r)
	if asin == "" {
		RespondError(w, http.StatusBadRequest, "asin is required")
		return
	}

	result, err := h.service.QuerySources(r.Context(), asin, sources.QueryOptions{
		ForceRefresh: boolQuery(r, "force"),
	})
	if err != nil {
		respondSourcesError(w, r, asin, err)
		return
	}

	etag := sourcesETag(result)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// AutoDownload queries sources and hands the best one to Prowlarr when the book is not fulfilled yet.
func (h *SourcesHandler) AutoDownload(w http.ResponseWriter, r *http.Request) {
	asin := asinParam(r)
	if asin == "" {
		RespondError(w, http.StatusBadRequest, "asin is required")
		return
	}

	result, err := h.service.QuerySources(r.Context(), asin, sources.QueryOptions{
		ForceRefresh:      boolQuery(r, "force"),
		StartAutoDownload: true,
	})
	if err != nil {
		respondSourcesError(w, r, asin, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Refresh warms the cache in the background.
func (h *SourcesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	asin := asinParam(r)
	if asin == "" {
		RespondError(w, http.StatusBadRequest, "asin is required")
		return
	}

	h.service.RefreshAsync(asin, boolQuery(r, "force"))
	w.WriteHeader(http.StatusAccepted)
}

// Download sends a user chosen source to Prowlarr.
func (h *SourcesHandler) Download(w http.ResponseWriter, r *http.Request) {
	asin := asinParam(r)
	if asin == "" {
		RespondError(w, http.StatusBadRequest, "asin is required")
		return
	}

	var req DownloadSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Str("asin", asin).Msg("Failed to decode download request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	req.GUID = strings.TrimSpace(req.GUID)
	if req.GUID == "" || req.IndexerID <= 0 {
		RespondError(w, http.StatusBadRequest, "guid and indexerId are required")
		return
	}

	if err := h.service.DownloadSource(r.Context(), asin, req.GUID, req.IndexerID); err != nil {
		respondSourcesError(w, r, asin, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SourcesHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	asin := asinParam(r)
	RespondJSON(w, http.StatusOK, SourceStatusResponse{
		ASIN:     asin,
		Querying: h.service.IsQuerying(asin),
	})
}

func (h *SourcesHandler) ListInFlight(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, InFlightResponse{ASINs: h.service.InFlight()})
}

func (h *SourcesHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *SourcesHandler) FlushCache(w http.ResponseWriter, r *http.Request) {
	h.service.FlushCache()
	w.WriteHeader(http.StatusNoContent)
}
