// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store, err := NewSettingsStore(db, testKey(), "api_key")
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "base_url")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "base_url", "http://prowlarr:9696"))
	require.NoError(t, store.Set(ctx, "base_url", "http://prowlarr:9797"))

	value, ok, err := store.Get(ctx, "base_url")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://prowlarr:9797", value)

	require.NoError(t, store.Delete(ctx, "base_url"))
	_, ok, err = store.Get(ctx, "base_url")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsStoreEncryptsSecrets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	store, err := NewSettingsStore(db, testKey(), "api_key")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "api_key", "super-secret"))

	var raw string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'api_key'`).Scan(&raw))
	assert.NotEqual(t, "super-secret", raw)
	assert.NotContains(t, raw, "super-secret")

	value, ok, err := store.Get(ctx, "api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "super-secret", value)

	other, err := NewSettingsStore(db, []byte("ffffffffffffffffffffffffffffffff"), "api_key")
	require.NoError(t, err)
	_, _, err = other.Get(ctx, "api_key")
	require.Error(t, err)
}

func TestSettingsStoreEmptySecretStoredPlain(t *testing.T) {
	ctx := context.Background()
	store, err := NewSettingsStore(newTestDB(t), testKey(), "api_key")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "api_key", ""))
	value, ok, err := store.Get(ctx, "api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, value)
}

func TestSettingsStoreGetInt(t *testing.T) {
	ctx := context.Background()
	store, err := NewSettingsStore(newTestDB(t), testKey())
	require.NoError(t, err)

	tests := []struct {
		name   string
		value  string
		want   int
		wantOK bool
	}{
		{name: "number", value: "3600", want: 3600, wantOK: true},
		{name: "negative", value: "-5", want: -5, wantOK: true},
		{name: "garbage", value: "soon", want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, "ttl", tt.value))
			got, ok, err := store.GetInt(ctx, "ttl")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSettingsStoreRejectsShortKey(t *testing.T) {
	_, err := NewSettingsStore(nil, []byte("short"))
	require.Error(t, err)
}
