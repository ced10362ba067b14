// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ranking

import (
	"context"
	"sync/atomic"

	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
)

type rankerBox struct {
	Ranker
}

// Swappable delegates to a Ranker that can be replaced at runtime, e.g. after a config reload.
// Calls already running keep the ranker they started with.
type Swappable struct {
	current atomic.Pointer[rankerBox]
}

func NewSwappable(r Ranker) *Swappable {
	s := &Swappable{}
	s.Store(r)
	return s
}

func (s *Swappable) Store(r Ranker) {
	if r == nil {
		r = Identity
	}
	s.current.Store(&rankerBox{Ranker: r})
}

func (s *Swappable) Load() Ranker {
	return s.current.Load().Ranker
}

func (s *Swappable) Rank(ctx context.Context, sources []prowlarr.Source, book *models.BookRequest) ([]prowlarr.Source, error) {
	return s.Load().Rank(ctx, sources, book)
}
