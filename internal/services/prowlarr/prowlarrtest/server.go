// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package prowlarrtest provides a fake Prowlarr search API and an in-memory settings store.
package prowlarrtest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

const APIKey = "test-api-key"

// Server counts calls to /api/v1/search and replays canned responses.
type Server struct {
	*httptest.Server

	Searches  atomic.Int32
	Downloads atomic.Int32

	mu             sync.Mutex
	results        []map[string]any
	rawBody        string
	searchStatus   int
	downloadStatus int
	searchGate     chan struct{}
	lastQuery      url.Values
	lastDownload   map[string]any
	lastAPIKey     string
}

func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		searchStatus:   http.StatusOK,
		downloadStatus: http.StatusOK,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/search" {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.lastAPIKey = r.Header.Get("X-Api-Key")
	s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		s.Searches.Add(1)

		s.mu.Lock()
		s.lastQuery = r.URL.Query()
		gate := s.searchGate
		status := s.searchStatus
		raw := s.rawBody
		results := s.results
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if raw != "" {
			_, _ = io.WriteString(w, raw)
			return
		}
		if results == nil {
			results = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(results)
	case http.MethodPost:
		s.Downloads.Add(1)

		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)

		s.mu.Lock()
		s.lastDownload = payload
		status := s.downloadStatus
		s.mu.Unlock()

		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) SetResults(results ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results
	s.rawBody = ""
}

// SetRawBody makes searches answer with body verbatim.
func (s *Server) SetRawBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBody = body
}

func (s *Server) SetSearchStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchStatus = status
}

func (s *Server) SetDownloadStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadStatus = status
}

// HoldSearches blocks search responses until the returned release func is called.
func (s *Server) HoldSearches() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.searchGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.searchGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *Server) LastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Server) LastDownload() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDownload
}

func (s *Server) LastAPIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAPIKey
}

// Torrent builds a torrent search result.
func Torrent(guid, title string, seeders int) map[string]any {
	return map[string]any{
		"guid":         guid,
		"indexerId":    1,
		"indexer":      "AudioBookBay",
		"title":        title,
		"protocol":     "torrent",
		"publishDate":  "2024-03-01T10:00:00Z",
		"infoUrl":      "https://indexer.example/info/" + guid,
		"size":         512 << 20,
		"seeders":      seeders,
		"leechers":     1,
		"indexerFlags": []string{"FreeLeech"},
		"downloadUrl":  "https://indexer.example/dl/" + guid,
	}
}

// Usenet builds a usenet search result without a grabs count.
func Usenet(guid, title string) map[string]any {
	return map[string]any{
		"guid":        guid,
		"indexerId":   2,
		"indexer":     "NZBGeek",
		"title":       title,
		"protocol":    "usenet",
		"publishDate": "2024-02-01T08:00:00Z",
		"infoUrl":     "https://nzb.example/info/" + guid,
		"size":        400 << 20,
	}
}

// Settings is an in-memory key/value store with the same contract as models.SettingsStore.
type Settings struct {
	mu     sync.Mutex
	values map[string]string
	Reads  atomic.Int32
}

func NewSettings() *Settings {
	return &Settings{values: make(map[string]string)}
}

// Configured returns settings pointing at baseURL with the test API key.
func Configured(baseURL string) *Settings {
	s := NewSettings()
	s.values["prowlarr_base_url"] = baseURL
	s.values["prowlarr_api_key"] = APIKey
	return s
}

func (s *Settings) Get(_ context.Context, key string) (string, bool, error) {
	s.Reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Settings) GetInt(ctx context.Context, key string) (int, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (s *Settings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Settings) SetInt(ctx context.Context, key string, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}
