// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ranking

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
)

func TestSwappableStore(t *testing.T) {
	reverse := Func(func(_ context.Context, sources []prowlarr.Source, _ *models.BookRequest) ([]prowlarr.Source, error) {
		out := append([]prowlarr.Source(nil), sources...)
		slices.Reverse(out)
		return out, nil
	})

	in := []prowlarr.Source{{GUID: "a"}, {GUID: "b"}}
	s := NewSwappable(nil)

	got, err := s.Rank(context.Background(), in, &models.BookRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, guids(got))

	s.Store(reverse)

	got, err = s.Rank(context.Background(), in, &models.BookRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, guids(got))
	assert.Equal(t, []string{"a", "b"}, guids(in), "input untouched")
}
