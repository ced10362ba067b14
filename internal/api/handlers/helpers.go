// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/sources"
)

// MisconfiguredRedirect is where clients send the user when Prowlarr is not set up.
const MisconfiguredRedirect = "/settings/prowlarr?prowlarr_misconfigured=1"

type ErrorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// respondSourcesError maps orchestrator failures onto HTTP statuses.
func respondSourcesError(w http.ResponseWriter, r *http.Request, asin string, err error) {
	var downloadErr *sources.DownloadFailedError

	switch {
	case errors.Is(err, prowlarr.ErrMisconfigured):
		RespondJSON(w, http.StatusConflict, ErrorResponse{
			Error:    "Prowlarr is not configured",
			Redirect: MisconfiguredRedirect,
		})
	case errors.Is(err, sources.ErrBookNotFound):
		RespondError(w, http.StatusNotFound, "Book not found")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		log.Debug().Str("asin", asin).Msg("Client went away during source query")
	case errors.As(err, &downloadErr):
		log.Warn().Err(err).Str("asin", asin).Msg("Prowlarr rejected download")
		RespondError(w, http.StatusBadGateway, "Failed to start download")
	default:
		log.Error().Err(err).Str("asin", asin).Msg("Source query failed")
		RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
