// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/bookwish/internal/domain"
)

const (
	KeyAPIKey     = "prowlarr_api_key"
	KeyBaseURL    = "prowlarr_base_url"
	KeySourceTTL  = "prowlarr_source_ttl"
	KeyCategories = "prowlarr_categories"

	DefaultSourceTTL = 24 * time.Hour

	// CategoryAudiobook is the newznab/torznab audio/audiobook category.
	CategoryAudiobook = 3030
)

// DefaultCategories returns a fresh copy of the default category filter.
func DefaultCategories() []int {
	return []int{CategoryAudiobook}
}

// SettingsStore is the persistence the ConfigStore reads and writes through.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetInt(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key, value string) error
	SetInt(ctx context.Context, key string, value int) error
}

// Settings is a point-in-time snapshot of the Prowlarr connection settings.
type Settings struct {
	BaseURL    string        `json:"baseUrl"`
	APIKey     string        `json:"apiKey"`
	SourceTTL  time.Duration `json:"-"`
	Categories []int         `json:"categories"`
}

func (s Settings) Valid() bool {
	return s.BaseURL != "" && s.APIKey != ""
}

// Redacted returns a copy safe to serialize to clients.
func (s Settings) Redacted() Settings {
	out := s
	out.APIKey = domain.RedactString(s.APIKey)
	out.Categories = append([]int(nil), s.Categories...)
	return out
}

type ConfigStore struct {
	store SettingsStore
}

func NewConfigStore(store SettingsStore) *ConfigStore {
	return &ConfigStore{store: store}
}

// BaseURL returns the configured URL without a trailing slash, or "" when unset.
func (c *ConfigStore) BaseURL(ctx context.Context) (string, error) {
	value, _, err := c.store.Get(ctx, KeyBaseURL)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(strings.TrimSpace(value), "/"), nil
}

func (c *ConfigStore) SetBaseURL(ctx context.Context, baseURL string) error {
	return c.store.Set(ctx, KeyBaseURL, strings.TrimRight(strings.TrimSpace(baseURL), "/"))
}

func (c *ConfigStore) APIKey(ctx context.Context) (string, error) {
	value, _, err := c.store.Get(ctx, KeyAPIKey)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (c *ConfigStore) SetAPIKey(ctx context.Context, apiKey string) error {
	return c.store.Set(ctx, KeyAPIKey, strings.TrimSpace(apiKey))
}

func (c *ConfigStore) SourceTTL(ctx context.Context) (time.Duration, error) {
	seconds, ok, err := c.store.GetInt(ctx, KeySourceTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultSourceTTL, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

func (c *ConfigStore) SetSourceTTL(ctx context.Context, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("source ttl must not be negative: %s", ttl)
	}
	return c.store.SetInt(ctx, KeySourceTTL, int(ttl/time.Second))
}

func (c *ConfigStore) Categories(ctx context.Context) ([]int, error) {
	raw, ok, err := c.store.Get(ctx, KeyCategories)
	if err != nil {
		return nil, err
	}
	if !ok {
		return DefaultCategories(), nil
	}

	var categories []int
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyCategories, err)
	}
	if categories == nil {
		categories = []int{}
	}
	return categories, nil
}

func (c *ConfigStore) SetCategories(ctx context.Context, categories []int) error {
	if categories == nil {
		categories = []int{}
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, KeyCategories, string(encoded))
}

// Validate returns ErrMisconfigured naming the first missing setting.
func (c *ConfigStore) Validate(ctx context.Context) error {
	baseURL, err := c.BaseURL(ctx)
	if err != nil {
		return err
	}
	if baseURL == "" {
		return fmt.Errorf("%w: base url not set", ErrMisconfigured)
	}

	apiKey, err := c.APIKey(ctx)
	if err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("%w: api key not set", ErrMisconfigured)
	}

	return nil
}

func (c *ConfigStore) IsValid(ctx context.Context) bool {
	return c.Validate(ctx) == nil
}

// Load reads every setting fresh from the store.
func (c *ConfigStore) Load(ctx context.Context) (Settings, error) {
	var (
		settings Settings
		err      error
	)

	if settings.BaseURL, err = c.BaseURL(ctx); err != nil {
		return Settings{}, err
	}
	if settings.APIKey, err = c.APIKey(ctx); err != nil {
		return Settings{}, err
	}
	if settings.SourceTTL, err = c.SourceTTL(ctx); err != nil {
		return Settings{}, err
	}
	if settings.Categories, err = c.Categories(ctx); err != nil {
		return Settings{}, err
	}

	return settings, nil
}
