// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/bookwish/internal/api/openapi"
	"github.com/autobrr/bookwish/internal/config"
	"github.com/autobrr/bookwish/internal/database"
	"github.com/autobrr/bookwish/internal/domain"
	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/prowlarr/prowlarrtest"
	"github.com/autobrr/bookwish/internal/services/ranking"
	"github.com/autobrr/bookwish/internal/services/sources"
)

type routeKey struct {
	Method string
	Path   string
}

var undocumentedRoutes = map[routeKey]struct{}{}

func TestAllEndpointsDocumented(t *testing.T) {
	env := newTestEnv(t)
	router, err := env.server.Handler()
	require.NoError(t, err)

	actualRoutes := collectRouterRoutes(t, router)
	documentedRoutes := loadDocumentedRoutes(t)

	undocumented := diffRoutes(actualRoutes, documentedRoutes)
	if len(undocumented) > 0 {
		t.Fatalf("found %d undocumented API endpoints:\n%s", len(undocumented), formatRoutes(undocumented))
	}

	missingHandlers := diffRoutes(documentedRoutes, actualRoutes)
	if len(missingHandlers) > 0 {
		t.Fatalf("found %d documented endpoints without handlers:\n%s", len(missingHandlers), formatRoutes(missingHandlers))
	}

	t.Logf("checked %d API routes registered in chi", len(actualRoutes))
	t.Logf("OpenAPI spec documents %d API routes", len(documentedRoutes))
}

type testEnv struct {
	server   *Server
	prowlarr *prowlarrtest.Server
	config   *prowlarr.ConfigStore
	cache    *prowlarr.SourceCache
	books    *models.BookRequestStore
	service  *sources.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	settings, err := models.NewSettingsStore(db, bytes.Repeat([]byte("k"), 32), prowlarr.KeyAPIKey)
	require.NoError(t, err)

	upstream := prowlarrtest.NewServer(t)
	prowlarrConfig := prowlarr.NewConfigStore(settings)

	cache := prowlarr.NewSourceCache()
	t.Cleanup(cache.Close)

	client := prowlarr.NewClient(prowlarrConfig, cache, prowlarr.WithHTTPClient(upstream.Client()))
	books := models.NewBookRequestStore(db)
	service := sources.NewService(sources.DefaultConfig(), prowlarrConfig, client, cache, books, ranking.Identity)
	t.Cleanup(service.Close)

	server := NewServer(&Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{
				BaseURL: "/",
			},
		},
		Version:        "test",
		DB:             db,
		Sources:        service,
		Cache:          cache,
		ProwlarrConfig: prowlarrConfig,
		Books:          books,
	})

	return &testEnv{
		server:   server,
		prowlarr: upstream,
		config:   prowlarrConfig,
		cache:    cache,
		books:    books,
		service:  service,
	}
}

func (e *testEnv) configure(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.config.SetBaseURL(ctx, e.prowlarr.URL))
	require.NoError(t, e.config.SetAPIKey(ctx, prowlarrtest.APIKey))
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	router, err := e.server.Handler()
	require.NoError(t, err)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSourcesMisconfiguredRedirects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sources/B001", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/settings/prowlarr?prowlarr_misconfigured=1", body["redirect"])
	assert.EqualValues(t, 0, env.prowlarr.Searches.Load())
}

func TestSourcesEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	env.prowlarr.SetResults(
		prowlarrtest.Torrent("t1", "Project Hail Mary", 5),
		prowlarrtest.Usenet("u1", "Project Hail Mary"),
	)

	rec := env.do(t, http.MethodPost, "/api/wishlist", map[string]any{
		"asin":     "B08G9PRS1K",
		"title":    "Project Hail Mary",
		"authors":  []string{"Andy Weir"},
		"username": "alice",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sources/B08G9PRS1K", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var result sources.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "Project Hail Mary Andy Weir", env.prowlarr.LastQuery().Get("query"))

	rec = env.do(t, http.MethodGet, "/api/sources/B08G9PRS1K", nil, http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.EqualValues(t, 1, env.prowlarr.Searches.Load(), "second read served from cache")

	rec = env.do(t, http.MethodPost, "/api/sources/B08G9PRS1K/download", map[string]any{"guid": "t1", "indexerId": 1}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	book, err := env.books.GetByASIN(context.Background(), "B08G9PRS1K")
	require.NoError(t, err)
	assert.True(t, book.Downloaded)

	rec = env.do(t, http.MethodGet, "/api/sources/B08G9PRS1K", nil, http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusOK, rec.Code, "fulfilment changes the etag")
}

func TestSourcesNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)

	rec := env.do(t, http.MethodGet, "/api/sources/MISSING", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.EqualValues(t, 0, env.prowlarr.Searches.Load())
}

func TestAutoDownloadFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	env.prowlarr.SetResults(prowlarrtest.Torrent("t1", "Project Hail Mary", 5))
	env.prowlarr.SetDownloadStatus(http.StatusInternalServerError)

	_, err := env.books.Create(context.Background(), &models.BookRequest{ASIN: "B001", Title: "Project Hail Mary"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/sources/B001/auto-download", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	book, err := env.books.GetByASIN(context.Background(), "B001")
	require.NoError(t, err)
	assert.False(t, book.Downloaded)
}

func TestProwlarrSettingsRedactsAndFlushes(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	env.cache.Set("cached query", []prowlarr.Source{{GUID: "x"}})

	rec := env.do(t, http.MethodGet, "/api/settings/prowlarr", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.RedactString("set"), got["apiKey"])
	assert.Equal(t, true, got["configured"])

	rec = env.do(t, http.MethodPut, "/api/settings/prowlarr", map[string]any{
		"apiKey":           got["apiKey"],
		"sourceTtlSeconds": 60,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.cache.Len(), "ttl change keeps the cache")

	apiKey, err := env.config.APIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prowlarrtest.APIKey, apiKey, "redacted key is not written back")

	rec = env.do(t, http.MethodPut, "/api/settings/prowlarr", map[string]any{
		"categories": []int{3030, 3040},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.cache.Len(), "category change flushes the cache")

	rec = env.do(t, http.MethodPut, "/api/settings/prowlarr", map[string]any{"baseUrl": "ftp://nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthRoutes(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/healthz/liveness", "/healthz/readiness", "/api/health"} {
		rec := env.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func collectRouterRoutes(t *testing.T, r chi.Routes) map[routeKey]struct{} {
	t.Helper()

	routes := make(map[routeKey]struct{})
	err := chi.Walk(r, func(method string, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		method = strings.ToUpper(method)
		if !isComparableMethod(method) {
			return nil
		}

		normalizedPath, ok := normalizeRoutePath(path)
		if !ok {
			return nil
		}

		route := routeKey{Method: method, Path: normalizedPath}
		if _, skip := undocumentedRoutes[route]; skip {
			return nil
		}

		routes[route] = struct{}{}
		return nil
	})
	require.NoError(t, err)

	return routes
}

func loadDocumentedRoutes(t *testing.T) map[routeKey]struct{} {
	t.Helper()

	specBytes, err := openapi.GetOpenAPISpec()
	require.NoError(t, err)
	require.NotEmpty(t, specBytes, "OpenAPI spec should be embedded")

	var spec map[string]any
	require.NoError(t, yaml.Unmarshal(specBytes, &spec))

	pathsNode, ok := spec["paths"].(map[string]any)
	require.True(t, ok, "OpenAPI spec missing paths section")

	routes := make(map[routeKey]struct{})

	for path, pathItem := range pathsNode {
		normalizedPath, ok := normalizeRoutePath(path)
		if !ok {
			continue
		}

		methods, ok := pathItem.(map[string]any)
		if !ok {
			continue
		}

		for method := range methods {
			upperMethod := strings.ToUpper(method)
			if !isComparableMethod(upperMethod) {
				continue
			}

			routes[routeKey{Method: upperMethod, Path: normalizedPath}] = struct{}{}
		}
	}

	return routes
}

func normalizeRoutePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}

	if strings.Contains(path, "/*") {
		return "", false
	}

	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	if path == "/api/openapi.yaml" {
		return "", false
	}

	if !strings.HasPrefix(path, "/api") && !strings.HasPrefix(path, "/health") {
		return "", false
	}

	return path, true
}

func isComparableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func diffRoutes(left, right map[routeKey]struct{}) []routeKey {
	diff := make([]routeKey, 0)
	for route := range left {
		if _, exists := right[route]; !exists {
			diff = append(diff, route)
		}
	}

	sort.Slice(diff, func(i, j int) bool {
		if diff[i].Path == diff[j].Path {
			return diff[i].Method < diff[j].Method
		}
		return diff[i].Path < diff[j].Path
	})

	return diff
}

func formatRoutes(routes []routeKey) string {
	lines := make([]string, len(routes))
	for i, route := range routes {
		lines[i] = fmt.Sprintf("%s %s", route.Method, route.Path)
	}
	return strings.Join(lines, "\n")
}
