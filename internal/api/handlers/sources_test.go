// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/sources"
)

// mockSourceService records calls and replays a fixed outcome.
type mockSourceService struct {
	result   *sources.QueryResult
	err      error
	querying map[string]bool

	queries   []sources.QueryOptions
	downloads []DownloadSourceRequest
	refreshes []string
	flushes   int
}

func (m *mockSourceService) QuerySources(_ context.Context, _ string, opts sources.QueryOptions) (*sources.QueryResult, error) {
	m.queries = append(m.queries, opts)
	return m.result, m.err
}

func (m *mockSourceService) DownloadSource(_ context.Context, _ string, guid string, indexerID int) error {
	m.downloads = append(m.downloads, DownloadSourceRequest{GUID: guid, IndexerID: indexerID})
	return m.err
}

func (m *mockSourceService) RefreshAsync(asin string, force bool) {
	m.refreshes = append(m.refreshes, fmt.Sprintf("%s:%t", asin, force))
}

func (m *mockSourceService) IsQuerying(asin string) bool {
	return m.querying[asin]
}

func (m *mockSourceService) InFlight() []string {
	out := []string{}
	for asin := range m.querying {
		out = append(out, asin)
	}
	return out
}

func (m *mockSourceService) FlushCache() {
	m.flushes++
}

type staticStats prowlarr.CacheStats

func (s staticStats) Stats() prowlarr.CacheStats {
	return prowlarr.CacheStats(s)
}

func newSourcesRouter(svc *mockSourceService) chi.Router {
	r := chi.NewRouter()
	NewSourcesHandler(svc, staticStats{Entries: 2, Sources: 7}).Routes(r)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetSourcesErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantRedirect string
	}{
		{
			name:         "misconfigured",
			err:          fmt.Errorf("%w: api key not set", prowlarr.ErrMisconfigured),
			wantStatus:   http.StatusConflict,
			wantRedirect: MisconfiguredRedirect,
		},
		{
			name:       "book not found",
			err:        fmt.Errorf("%w: B001: %w", sources.ErrBookNotFound, models.ErrBookRequestNotFound),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "download failed",
			err:        &sources.DownloadFailedError{ASIN: "B001", GUID: "g", IndexerID: 1, StatusCode: 500},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "download unreachable",
			err:        &sources.DownloadFailedError{ASIN: "B001", GUID: "g", IndexerID: 1, Err: errors.New("connection refused")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "upstream failure",
			err:        &prowlarr.UpstreamError{StatusCode: 503, URL: "http://prowlarr/api/v1/search", Err: errors.New("unavailable")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSourceService{err: tt.err}
			rec := serve(newSourcesRouter(svc), http.MethodGet, "/sources/B001", "")

			require.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantRedirect, body.Redirect)
		})
	}
}

func TestGetSourcesPassesForceAndSetsETag(t *testing.T) {
	svc := &mockSourceService{result: &sources.QueryResult{
		Sources: []prowlarr.Source{{GUID: "a"}, {GUID: "b"}},
		Book:    &models.BookRequest{ASIN: "B001"},
	}}
	r := newSourcesRouter(svc)

	rec := serve(r, http.MethodGet, "/sources/B001?force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.queries, 1)
	assert.True(t, svc.queries[0].ForceRefresh)
	assert.False(t, svc.queries[0].StartAutoDownload)

	etag := rec.Header().Get("ETag")
	assert.Equal(t, sourcesETag(svc.result), etag)

	svc.result.Sources = []prowlarr.Source{{GUID: "b"}, {GUID: "a"}}
	assert.NotEqual(t, etag, sourcesETag(svc.result), "order is part of the etag")
}

func TestAutoDownloadRequestsDownload(t *testing.T) {
	svc := &mockSourceService{result: &sources.QueryResult{Sources: []prowlarr.Source{}}}

	rec := serve(newSourcesRouter(svc), http.MethodPost, "/sources/B001/auto-download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.queries, 1)
	assert.True(t, svc.queries[0].StartAutoDownload)
}

func TestDownloadValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCalls  int
	}{
		{name: "ok", body: `{"guid":"g1","indexerId":4}`, wantStatus: http.StatusNoContent, wantCalls: 1},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing guid", body: `{"indexerId":4}`, wantStatus: http.StatusBadRequest},
		{name: "missing indexer", body: `{"guid":"g1"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "rejected by prowlarr",
			body:       `{"guid":"g1","indexerId":4}`,
			err:        &sources.DownloadFailedError{StatusCode: 400},
			wantStatus: http.StatusBadGateway,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSourceService{err: tt.err}
			rec := serve(newSourcesRouter(svc), http.MethodPost, "/sources/B001/download", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Len(t, svc.downloads, tt.wantCalls)
		})
	}
}

func TestRefreshStatusAndCache(t *testing.T) {
	svc := &mockSourceService{querying: map[string]bool{"B001": true}}
	r := newSourcesRouter(svc)

	rec := serve(r, http.MethodPost, "/sources/B001/refresh?force=1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"B001:true"}, svc.refreshes)

	rec = serve(r, http.MethodGet, "/sources/B001/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status SourceStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, SourceStatusResponse{ASIN: "B001", Querying: true}, status)

	rec = serve(r, http.MethodGet, "/sources/in-flight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"asins":["B001"]}`, rec.Body.String())

	rec = serve(r, http.MethodGet, "/sources/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats prowlarr.CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 7, stats.Sources)

	rec = serve(r, http.MethodDelete, "/sources/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.flushes)
}
