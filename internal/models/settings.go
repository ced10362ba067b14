// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/autobrr/bookwish/internal/dbinterface"
)

// SettingsStore is a string key/value store backed by the settings table.
// Keys listed as secret are encrypted at rest.
type SettingsStore struct {
	db         dbinterface.Querier
	box        *secretBox
	secretKeys map[string]struct{}
}

func NewSettingsStore(db dbinterface.Querier, encryptionKey []byte, secretKeys ...string) (*SettingsStore, error) {
	box, err := newSecretBox(encryptionKey)
	if err != nil {
		return nil, err
	}

	secrets := make(map[string]struct{}, len(secretKeys))
	for _, key := range secretKeys {
		secrets[key] = struct{}{}
	}

	return &SettingsStore{
		db:         db,
		box:        box,
		secretKeys: secrets,
	}, nil
}

func (s *SettingsStore) isSecret(key string) bool {
	_, ok := s.secretKeys[key]
	return ok
}

// Get returns the stored value for key. The boolean is false when the key has never been set.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}

	if s.isSecret(key) && raw != "" {
		plain, err := s.box.open(raw)
		if err != nil {
			return "", false, fmt.Errorf("decrypt setting %s: %w", key, err)
		}
		return plain, true, nil
	}

	return raw, true, nil
}

// GetInt parses the stored value as an integer. Missing or malformed values yield ok=false.
func (s *SettingsStore) GetInt(ctx context.Context, key string) (int, bool, error) {
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

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	stored := value
	if s.isSecret(key) && value != "" {
		sealed, err := s.box.seal(value)
		if err != nil {
			return fmt.Errorf("encrypt setting %s: %w", key, err)
		}
		stored = sealed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, stored)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) SetInt(ctx context.Context, key string, value int) error {
	return s.Set(ctx, key, strconv.Itoa(value))
}

func (s *SettingsStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
