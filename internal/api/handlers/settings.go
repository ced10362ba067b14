// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/domain"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
)

type CacheFlusher interface {
	FlushCache()
}

type ProwlarrSettingsHandler struct {
	config  *prowlarr.ConfigStore
	flusher CacheFlusher
}

func NewProwlarrSettingsHandler(config *prowlarr.ConfigStore, flusher CacheFlusher) *ProwlarrSettingsHandler {
	return &ProwlarrSettingsHandler{
		config:  config,
		flusher: flusher,
	}
}

type ProwlarrSettingsResponse struct {
	BaseURL          string `json:"baseUrl"`
	APIKey           string `json:"apiKey"`
	SourceTTLSeconds int    `json:"sourceTtlSeconds"`
	Categories       []int  `json:"categories"`
	Configured       bool   `json:"configured"`
}

// ProwlarrSettingsUpdate is a partial update. Nil fields are left unchanged and a redacted
// API key echoed back by the client is ignored.
type ProwlarrSettingsUpdate struct {
	BaseURL          *string `json:"baseUrl"`
	APIKey           *string `json:"apiKey"`
	SourceTTLSeconds *int    `json:"sourceTtlSeconds"`
	Categories       *[]int  `json:"categories"`
}

func (h *ProwlarrSettingsHandler) Routes(r chi.Router) {
	r.Get("/settings/prowlarr", h.Get)
	r.Put("/settings/prowlarr", h.Update)
}

func (h *ProwlarrSettingsHandler) respondCurrent(w http.ResponseWriter, r *http.Request) {
	settings, err := h.config.Load(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load prowlarr settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load Prowlarr settings")
		return
	}

	redacted := settings.Redacted()
	RespondJSON(w, http.StatusOK, ProwlarrSettingsResponse{
		BaseURL:          redacted.BaseURL,
		APIKey:           redacted.APIKey,
		SourceTTLSeconds: int(settings.SourceTTL / time.Second),
		Categories:       redacted.Categories,
		Configured:       settings.Valid(),
	})
}

func (h *ProwlarrSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respondCurrent(w, r)
}

func (h *ProwlarrSettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input ProwlarrSettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.Warn().Err(err).Msg("failed to decode prowlarr settings request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if input.BaseURL != nil {
		if msg := validateBaseURL(*input.BaseURL); msg != "" {
			RespondError(w, http.StatusBadRequest, msg)
			return
		}
	}
	if input.SourceTTLSeconds != nil && *input.SourceTTLSeconds < 0 {
		RespondError(w, http.StatusBadRequest, "sourceTtlSeconds must not be negative")
		return
	}
	if input.Categories != nil && slices.ContainsFunc(*input.Categories, func(c int) bool { return c <= 0 }) {
		RespondError(w, http.StatusBadRequest, "categories must be positive")
		return
	}

	ctx := r.Context()

	current, err := h.config.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load prowlarr settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load Prowlarr settings")
		return
	}

	flush := false

	if input.BaseURL != nil {
		next := strings.TrimRight(strings.TrimSpace(*input.BaseURL), "/")
		if next != current.BaseURL {
			if err := h.config.SetBaseURL(ctx, next); err != nil {
				log.Error().Err(err).Msg("failed to save prowlarr base url")
				RespondError(w, http.StatusInternalServerError, "Failed to update Prowlarr settings")
				return
			}
			flush = true
		}
	}

	if input.APIKey != nil && !domain.IsRedactedString(*input.APIKey) {
		if err := h.config.SetAPIKey(ctx, *input.APIKey); err != nil {
			log.Error().Err(err).Msg("failed to save prowlarr api key")
			RespondError(w, http.StatusInternalServerError, "Failed to update Prowlarr settings")
			return
		}
	}

	if input.SourceTTLSeconds != nil {
		if err := h.config.SetSourceTTL(ctx, time.Duration(*input.SourceTTLSeconds)*time.Second); err != nil {
			log.Error().Err(err).Msg("failed to save prowlarr source ttl")
			RespondError(w, http.StatusInternalServerError, "Failed to update Prowlarr settings")
			return
		}
	}

	if input.Categories != nil && !slices.Equal(*input.Categories, current.Categories) {
		if err := h.config.SetCategories(ctx, *input.Categories); err != nil {
			log.Error().Err(err).Msg("failed to save prowlarr categories")
			RespondError(w, http.StatusInternalServerError, "Failed to update Prowlarr settings")
			return
		}
		flush = true
	}

	// Cached results were fetched from a different server or with different filters.
	if flush && h.flusher != nil {
		h.flusher.FlushCache()
	}

	log.Info().Bool("cacheFlushed", flush).Msg("Prowlarr settings updated")

	h.respondCurrent(w, r)
}

func validateBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "baseUrl must be an http or https URL"
	}
	return ""
}
