// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ranking orders candidate sources for a book request, best first.
package ranking

import (
	"context"

	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
)

// Ranker must be deterministic for a fixed input and must not mutate sources.
type Ranker interface {
	Rank(ctx context.Context, sources []prowlarr.Source, book *models.BookRequest) ([]prowlarr.Source, error)
}

// Func adapts a plain function to Ranker.
type Func func(ctx context.Context, sources []prowlarr.Source, book *models.BookRequest) ([]prowlarr.Source, error)

func (f Func) Rank(ctx context.Context, sources []prowlarr.Source, book *models.BookRequest) ([]prowlarr.Source, error) {
	return f(ctx, sources, book)
}

// Identity keeps the aggregator order.
var Identity Ranker = Func(func(_ context.Context, sources []prowlarr.Source, _ *models.BookRequest) ([]prowlarr.Source, error) {
	return append([]prowlarr.Source(nil), sources...), nil
})
