// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/bookwish/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewCreatesDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")

	cfg, err := New(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, "localhost", cfg.Config.Host)
	assert.Equal(t, 8585, cfg.Config.Port)
	assert.Equal(t, defaultProwlarrTimeout, cfg.Config.ProwlarrTimeout)
	assert.Empty(t, cfg.Config.RankingFilter)
	assert.Equal(t, filepath.Join(dir, "bookwish.db"), cfg.GetDatabasePath())

	secret, err := hex.DecodeString(cfg.Config.SessionSecret)
	require.NoError(t, err)
	assert.Len(t, secret, sessionSecretBytes)

	again, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Config.SessionSecret, again.Config.SessionSecret, "existing config must not be regenerated")
}

func TestNewRejectsEmptySessionSecret(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "sessionSecret = \"\"\n")

	_, err := New(path)
	require.Error(t, err)
}

func TestDatabasePath(t *testing.T) {
	tests := []struct {
		name    string
		content func(dataDir string) string
		env     bool
		flag    bool
		want    func(configDir, dataDir string) string
	}{
		{
			name:    "next to config",
			content: func(string) string { return "sessionSecret = \"s\"\n" },
			want:    func(configDir, _ string) string { return filepath.Join(configDir, "bookwish.db") },
		},
		{
			name:    "dataDir key",
			content: func(dataDir string) string { return "sessionSecret = \"s\"\ndataDir = \"" + filepath.ToSlash(dataDir) + "\"\n" },
			want:    func(_, dataDir string) string { return filepath.Join(dataDir, "bookwish.db") },
		},
		{
			name:    "env override",
			content: func(string) string { return "sessionSecret = \"s\"\ndataDir = \"/ignored\"\n" },
			env:     true,
			want:    func(_, dataDir string) string { return filepath.Join(dataDir, "bookwish.db") },
		},
		{
			name:    "flag override",
			content: func(string) string { return "sessionSecret = \"s\"\n" },
			flag:    true,
			want:    func(_, dataDir string) string { return filepath.Join(dataDir, "bookwish.db") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir := t.TempDir()
			dataDir := t.TempDir()
			path := writeConfig(t, configDir, tt.content(dataDir))
			if tt.env {
				t.Setenv(envPrefix+"DATA_DIR", dataDir)
			}

			cfg, err := New(path)
			require.NoError(t, err)
			if tt.flag {
				cfg.SetDataDir(dataDir)
			}

			assert.Equal(t, filepath.Clean(tt.want(configDir, dataDir)), filepath.Clean(cfg.GetDatabasePath()))
		})
	}
}

func TestResolveConfigFile(t *testing.T) {
	dir := t.TempDir()
	plainFile := filepath.Join(dir, "bookwish-settings")
	require.NoError(t, os.WriteFile(plainFile, []byte("port = 1"), 0o600))

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "directory", input: dir, want: filepath.Join(dir, "config.toml")},
		{name: "missing directory", input: filepath.Join(dir, "nope"), want: filepath.Join(dir, "nope", "config.toml")},
		{name: "toml file", input: "/etc/bookwish/custom.toml", want: "/etc/bookwish/custom.toml"},
		{name: "uppercase extension", input: "/etc/bookwish/CONFIG.TOML", want: "/etc/bookwish/CONFIG.TOML"},
		{name: "existing file without extension", input: plainFile, want: plainFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveConfigFile(tt.input))
		})
	}

	t.Run("default location", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/config")
		assert.Equal(t, filepath.Join("/config", "config.toml"), ResolveConfigFile(""))
	})
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "sessionSecret = \"s\"\nport = 9000\nprowlarrTimeout = 12\nrankingFilter = \"Seeders > 5\"\n")

	tests := []struct {
		name  string
		env   string
		value string
		check func(t *testing.T, c *domain.Config)
	}{
		{
			name: "file values without env",
			check: func(t *testing.T, c *domain.Config) {
				assert.Equal(t, 9000, c.Port)
				assert.Equal(t, 12, c.ProwlarrTimeout)
				assert.Equal(t, "Seeders > 5", c.RankingFilter)
			},
		},
		{
			name:  "port",
			env:   "PORT",
			value: "7000",
			check: func(t *testing.T, c *domain.Config) { assert.Equal(t, 7000, c.Port) },
		},
		{
			name:  "prowlarr timeout",
			env:   "PROWLARR_TIMEOUT",
			value: "45",
			check: func(t *testing.T, c *domain.Config) { assert.Equal(t, 45, c.ProwlarrTimeout) },
		},
		{
			name:  "ranking filter",
			env:   "RANKING_FILTER",
			value: "Protocol == 'usenet'",
			check: func(t *testing.T, c *domain.Config) { assert.Equal(t, "Protocol == 'usenet'", c.RankingFilter) },
		},
		{
			name:  "metrics basic auth users",
			env:   "METRICS_BASIC_AUTH_USERS",
			value: "admin:$2y$10$hash",
			check: func(t *testing.T, c *domain.Config) { assert.Equal(t, "admin:$2y$10$hash", c.MetricsBasicAuthUsers) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv(envPrefix+tt.env, tt.value)
			}

			cfg, err := New(path)
			require.NoError(t, err)
			tt.check(t, cfg.Config)
		})
	}
}

func TestSecretsFromFile(t *testing.T) {
	writeSecret := func(t *testing.T, value string) string {
		path := filepath.Join(t.TempDir(), "secret")
		require.NoError(t, os.WriteFile(path, []byte(value+"\n"), 0o600))
		return path
	}

	tests := []struct {
		name     string
		env      string
		envValue string
		file     string
		read     func(c *domain.Config) string
		want     string
	}{
		{
			name: "session secret from file",
			env:  "SESSION_SECRET",
			file: "from-file",
			read: func(c *domain.Config) string { return c.SessionSecret },
			want: "from-file",
		},
		{
			name:     "file wins over plain env",
			env:      "SESSION_SECRET",
			envValue: "from-env",
			file:     "from-file",
			read:     func(c *domain.Config) string { return c.SessionSecret },
			want:     "from-file",
		},
		{
			name:     "plain env without file",
			env:      "SESSION_SECRET",
			envValue: "from-env",
			read:     func(c *domain.Config) string { return c.SessionSecret },
			want:     "from-env",
		},
		{
			name: "metrics users from file",
			env:  "METRICS_BASIC_AUTH_USERS",
			file: "admin:$2y$10$hash",
			read: func(c *domain.Config) string { return c.MetricsBasicAuthUsers },
			want: "admin:$2y$10$hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(envPrefix+tt.env, tt.envValue)
			}
			if tt.file != "" {
				t.Setenv(envPrefix+tt.env+"_FILE", writeSecret(t, tt.file))
			}

			cfg, err := New(writeConfig(t, t.TempDir(), "sessionSecret = \"from-config\"\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.read(cfg.Config))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Setenv(envPrefix+"SESSION_SECRET_FILE", filepath.Join(t.TempDir(), "absent"))
		_, err := New(writeConfig(t, t.TempDir(), "sessionSecret = \"s\"\n"))
		require.Error(t, err)
	})
}

func TestGetEncryptionKey(t *testing.T) {
	key := func(secret string) []byte {
		return (&AppConfig{Config: &domain.Config{SessionSecret: secret}}).GetEncryptionKey()
	}

	assert.Len(t, key("short"), encryptionKeySize)
	assert.Len(t, key(string(make([]byte, 100))), encryptionKeySize)
	assert.Equal(t, key("same"), key("same"))
	assert.NotEqual(t, key("one"), key("two"))
}

func TestProwlarrTimeoutFallback(t *testing.T) {
	cfg := &AppConfig{Config: &domain.Config{}}
	assert.Equal(t, defaultProwlarrTimeout, cfg.ProwlarrTimeoutSeconds())

	cfg.Config.ProwlarrTimeout = -5
	assert.Equal(t, defaultProwlarrTimeout, cfg.ProwlarrTimeoutSeconds())

	cfg.Config.ProwlarrTimeout = 90
	assert.Equal(t, 90, cfg.ProwlarrTimeoutSeconds())
}

func TestReloadNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "sessionSecret = \"s\"\nrankingFilter = \"Seeders > 0\"\n")

	cfg, err := New(path)
	require.NoError(t, err)

	var got []string
	cfg.RegisterReloadListener(func(c *domain.Config) {
		got = append(got, c.RankingFilter)
		c.RankingFilter = "mutated"
	})

	writeConfig(t, dir, "sessionSecret = \"s\"\nrankingFilter = \"Protocol == 'torrent'\"\nprowlarrTimeout = 5\n")
	require.NoError(t, cfg.viper.ReadInConfig())
	cfg.reload()

	assert.Equal(t, []string{"Protocol == 'torrent'"}, got)
	assert.Equal(t, "Protocol == 'torrent'", cfg.Config.RankingFilter, "listeners receive a copy")
	assert.Equal(t, 5, cfg.ProwlarrTimeoutSeconds())
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "port = 8585")
	assert.Contains(t, content, "#prowlarrTimeout = 30")
	assert.Contains(t, content, "#metricsBasicAuthUsers")
	assert.NotContains(t, content, "{{")

	require.NoError(t, os.WriteFile(path, []byte("port = 1\n"), 0o600))
	require.NoError(t, WriteDefaultConfig(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "port = 1\n", string(data))
}
