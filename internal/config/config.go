// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/bookwish/internal/buildinfo"
	"github.com/autobrr/bookwish/internal/domain"
)

const (
	envPrefix = "BOOKWISH__"

	configFileName   = "config.toml"
	databaseFileName = "bookwish.db"

	encryptionKeySize      = 32
	sessionSecretBytes     = 32
	defaultProwlarrTimeout = 30
)

// option is one config.toml key with its default and environment variable.
// Keys marked fromFile also accept <ENV>_FILE pointing at a file holding the value.
type option struct {
	key      string
	env      string
	def      any
	fromFile bool
}

var options = []option{
	{key: "host", env: "HOST", def: "localhost"},
	{key: "port", env: "PORT", def: 8585},
	{key: "baseUrl", env: "BASE_URL", def: "/"},
	{key: "sessionSecret", env: "SESSION_SECRET", fromFile: true},
	{key: "logLevel", env: "LOG_LEVEL", def: "INFO"},
	{key: "logPath", env: "LOG_PATH", def: ""},
	{key: "logMaxSize", env: "LOG_MAX_SIZE", def: 50},
	{key: "logMaxBackups", env: "LOG_MAX_BACKUPS", def: 3},
	{key: "dataDir", env: "DATA_DIR", def: ""},
	{key: "metricsEnabled", env: "METRICS_ENABLED", def: false},
	{key: "metricsHost", env: "METRICS_HOST", def: "127.0.0.1"},
	{key: "metricsPort", env: "METRICS_PORT", def: 9075},
	{key: "metricsBasicAuthUsers", env: "METRICS_BASIC_AUTH_USERS", def: "", fromFile: true},
	{key: "prowlarrTimeout", env: "PROWLARR_TIMEOUT", def: defaultProwlarrTimeout},
	{key: "rankingFilter", env: "RANKING_FILTER", def: ""},
}

type AppConfig struct {
	Config *domain.Config

	viper   *viper.Viper
	dataDir string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

// New loads config.toml from configDirOrPath, or from the OS default location when empty.
// A missing file is created from the default template first.
func New(configDirOrPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	for _, opt := range options {
		if opt.def != nil {
			c.viper.SetDefault(opt.key, opt.def)
		}
	}

	path := ResolveConfigFile(configDirOrPath)
	if err := c.load(path); err != nil {
		return nil, err
	}

	if err := c.bindEnv(); err != nil {
		return nil, err
	}

	if err := c.unmarshal(); err != nil {
		return nil, err
	}

	if c.Config.SessionSecret == "" {
		return nil, fmt.Errorf("sessionSecret is empty in %s", path)
	}

	c.dataDir = c.Config.DataDir
	if c.dataDir == "" {
		c.dataDir = filepath.Dir(path)
	}

	return c, nil
}

// Watch reloads the config whenever the file changes on disk. Only long running commands call it.
func (c *AppConfig) Watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("path", e.Name).Msg("Config file changed")
		c.reload()
	})
	c.viper.WatchConfig()
}

func (c *AppConfig) load(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefaultConfig(path); err != nil {
			return err
		}
	}

	c.viper.SetConfigType("toml")
	c.viper.SetConfigFile(path)
	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return nil
}

// bindEnv binds BOOKWISH__* variables explicitly. AutomaticEnv is avoided so unrelated
// variables such as Kubernetes service links never leak into the config.
func (c *AppConfig) bindEnv() error {
	for _, opt := range options {
		env := envPrefix + opt.env

		if opt.fromFile {
			if path := os.Getenv(env + "_FILE"); path != "" {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s_FILE: %w", env, err)
				}
				c.viper.Set(opt.key, strings.TrimSpace(string(content)))
				continue
			}
		}

		if err := c.viper.BindEnv(opt.key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

func (c *AppConfig) unmarshal() error {
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = buildinfo.Version
	return nil
}

// reload re-applies the file already read by viper and hands a copy to every listener.
func (c *AppConfig) reload() {
	if err := c.unmarshal(); err != nil {
		log.Error().Err(err).Msg("Failed to reload configuration")
		return
	}

	c.ApplyLogConfig()

	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		snapshot := *c.Config
		listener(&snapshot)
	}
}

// RegisterReloadListener registers fn to run after config.toml changes on disk.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// ResolveConfigFile maps a --config-dir value to the config file it names.
// Paths ending in .toml or pointing at an existing file are used as is.
func ResolveConfigFile(configDirOrPath string) string {
	if configDirOrPath == "" {
		return filepath.Join(GetDefaultConfigDir(), configFileName)
	}
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}
	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}
	return filepath.Join(configDirOrPath, configFileName)
}

// GetDefaultConfigDir returns the OS-specific config directory.
// XDG_CONFIG_HOME=/config (container images) is used directly.
func GetDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, "bookwish")
	}

	home, _ := os.UserHomeDir()
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "bookwish")
		}
		return filepath.Join(home, "AppData", "Roaming", "bookwish")
	}
	return filepath.Join(home, ".config", "bookwish")
}

func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.dataDir, databaseFileName)
}

// SetDataDir overrides the data directory, e.g. from --data-dir.
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetEncryptionKey derives the key that encrypts stored secrets (the Prowlarr API key)
// from sessionSecret. Changing sessionSecret makes stored secrets unreadable.
func (c *AppConfig) GetEncryptionKey() []byte {
	sum := sha256.Sum256([]byte(c.Config.SessionSecret))
	return sum[:encryptionKeySize]
}

// ProwlarrTimeoutSeconds returns the outbound Prowlarr timeout, falling back to the default.
func (c *AppConfig) ProwlarrTimeoutSeconds() int {
	if c.Config == nil || c.Config.ProwlarrTimeout <= 0 {
		return defaultProwlarrTimeout
	}
	return c.Config.ProwlarrTimeout
}

func newSessionSecret() (string, error) {
	buf := make([]byte, sessionSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
