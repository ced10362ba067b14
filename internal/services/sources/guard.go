// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/buildinfo"
)

// Guard tracks which identifiers are being queried right now.
// It is bookkeeping only; exclusion comes from the singleflight group in Service.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	devBuild bool
}

func NewGuard() *Guard {
	return &Guard{
		inFlight: make(map[string]struct{}),
		devBuild: buildinfo.IsDevBuild(),
	}
}

// With marks id in flight for the duration of fn, including panics.
func (g *Guard) With(id string, fn func() error) error {
	g.acquire(id)
	defer g.Release(id)
	return fn()
}

func (g *Guard) acquire(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inFlight[id]; ok {
		g.event().Str("asin", id).Msg("Identifier already in flight")
		return
	}
	g.inFlight[id] = struct{}{}
}

// Release removes id. Releasing an id that is not held is tolerated.
func (g *Guard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inFlight[id]; !ok {
		g.event().Str("asin", id).Msg("Released identifier that was not in flight")
		return
	}
	delete(g.inFlight, id)
}

func (g *Guard) InFlight(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[id]
	return ok
}

// List returns the in-flight identifiers sorted.
func (g *Guard) List() []string {
	g.mu.Lock()
	ids := make([]string, 0, len(g.inFlight))
	for id := range g.inFlight {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	slices.Sort(ids)
	return ids
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

func (g *Guard) event() *zerolog.Event {
	if g.devBuild {
		return log.Warn()
	}
	return log.Debug()
}
