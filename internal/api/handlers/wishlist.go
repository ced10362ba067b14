// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/models"
)

type WishlistStore interface {
	Create(ctx context.Context, req *models.BookRequest) (*models.BookRequest, error)
	Wishlist(ctx context.Context, pendingOnly bool) ([]*models.WishlistEntry, error)
	MarkDownloaded(ctx context.Context, asin string) (int64, error)
}

type WishlistHandler struct {
	store WishlistStore
}

func NewWishlistHandler(store WishlistStore) *WishlistHandler {
	return &WishlistHandler{store: store}
}

type CreateBookRequest struct {
	ASIN             string     `json:"asin"`
	Title            string     `json:"title"`
	Subtitle         *string    `json:"subtitle"`
	Authors          []string   `json:"authors"`
	Narrators        []string   `json:"narrators"`
	CoverImage       *string    `json:"coverImage"`
	ReleaseDate      *time.Time `json:"releaseDate"`
	RuntimeLengthMin int        `json:"runtimeLengthMin"`
	Username         string     `json:"username"`
}

func (h *WishlistHandler) Routes(r chi.Router) {
	r.Route("/wishlist", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Patch("/{asin}/downloaded", h.MarkDownloaded)
	})
}

// List returns one entry per ASIN. ?pending=true hides fulfilled books.
func (h *WishlistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Wishlist(r.Context(), boolQuery(r, "pending"))
	if err != nil {
		log.Error().Err(err).Msg("failed to list wishlist")
		RespondError(w, http.StatusInternalServerError, "Failed to load wishlist")
		return
	}

	RespondJSON(w, http.StatusOK, entries)
}

func (h *WishlistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		log.Warn().Err(err).Msg("failed to decode book request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	input.ASIN = strings.TrimSpace(input.ASIN)
	input.Title = strings.TrimSpace(input.Title)
	input.Username = strings.TrimSpace(input.Username)
	if input.ASIN == "" || input.Title == "" || input.Username == "" {
		RespondError(w, http.StatusBadRequest, "asin, title and username are required")
		return
	}

	created, err := h.store.Create(r.Context(), &models.BookRequest{
		ASIN:             input.ASIN,
		Title:            input.Title,
		Subtitle:         input.Subtitle,
		Authors:          input.Authors,
		Narrators:        input.Narrators,
		CoverImage:       input.CoverImage,
		ReleaseDate:      input.ReleaseDate,
		RuntimeLengthMin: input.RuntimeLengthMin,
		UserUsername:     &input.Username,
	})
	if errors.Is(err, models.ErrBookRequestExists) {
		RespondError(w, http.StatusConflict, "Book already requested")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("asin", input.ASIN).Msg("failed to create book request")
		RespondError(w, http.StatusInternalServerError, "Failed to create book request")
		return
	}

	RespondJSON(w, http.StatusCreated, created)
}

// MarkDownloaded flags a book fulfilled by hand, e.g. after a manual import.
func (h *WishlistHandler) MarkDownloaded(w http.ResponseWriter, r *http.Request) {
	asin := asinParam(r)

	affected, err := h.store.MarkDownloaded(r.Context(), asin)
	if err != nil {
		log.Error().Err(err).Str("asin", asin).Msg("failed to mark book downloaded")
		RespondError(w, http.StatusInternalServerError, "Failed to update book request")
		return
	}
	if affected == 0 {
		RespondError(w, http.StatusNotFound, "Book not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
