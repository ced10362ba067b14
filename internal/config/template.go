// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/rs/zerolog/log"
)

var defaultConfig = template.Must(template.New("config").Parse(`# bookwish configuration
# Every key can also be set with a BOOKWISH__<KEY> environment variable,
# e.g. BOOKWISH__PORT=8585 or BOOKWISH__PROWLARR_TIMEOUT=60.
# Prowlarr itself (URL, API key, categories, cache TTL) is configured with
# "bookwish set-prowlarr" or PUT /api/settings/prowlarr and stored in the database.

# Address to listen on. Use "0.0.0.0" inside containers.
host = "{{ .Host }}"
port = {{ .Port }}

# Serve under a sub path, e.g. "/bookwish/".
#baseUrl = "/"

# Encrypts the stored Prowlarr API key. Changing it means re-entering the key.
# BOOKWISH__SESSION_SECRET_FILE may point at a file holding the value instead.
sessionSecret = "{{ .SessionSecret }}"

# ERROR, WARN, INFO, DEBUG or TRACE
logLevel = "{{ .LogLevel }}"

# Also write logs to this file, rotated at logMaxSize megabytes keeping logMaxBackups files.
#logPath = "log/bookwish.log"
#logMaxSize = {{ .LogMaxSize }}
#logMaxBackups = {{ .LogMaxBackups }}

# Directory holding bookwish.db. Defaults to the directory of this file.
#dataDir = "/var/lib/bookwish"

# Prometheus metrics on a separate listener.
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9075

# Comma separated user:bcrypt-hash pairs protecting /metrics, e.g. from "htpasswd -nbB user password".
# BOOKWISH__METRICS_BASIC_AUTH_USERS_FILE may point at a file holding the value instead.
#metricsBasicAuthUsers = ""

# Seconds to wait for a Prowlarr search or download request.
#prowlarrTimeout = {{ .ProwlarrTimeout }}

# expr filter applied to search results before ranking. Reloaded without a restart.
# Fields: Protocol, Title, Indexer, Size, Seeders, Leechers, Grabs, Flags, AgeDays
#rankingFilter = "Protocol == 'usenet' || Seeders > 0"
`))

type templateValues struct {
	Host            string
	Port            int
	SessionSecret   string
	LogLevel        string
	LogMaxSize      int
	LogMaxBackups   int
	ProwlarrTimeout int
}

func defaultValues() (templateValues, error) {
	secret, err := newSessionSecret()
	if err != nil {
		return templateValues{}, err
	}

	values := templateValues{SessionSecret: secret}
	for _, opt := range options {
		switch opt.key {
		case "host":
			values.Host = opt.def.(string)
		case "port":
			values.Port = opt.def.(int)
		case "logLevel":
			values.LogLevel = opt.def.(string)
		case "logMaxSize":
			values.LogMaxSize = opt.def.(int)
		case "logMaxBackups":
			values.LogMaxBackups = opt.def.(int)
		case "prowlarrTimeout":
			values.ProwlarrTimeout = opt.def.(int)
		}
	}
	return values, nil
}

// WriteDefaultConfig renders the default config.toml to path with a fresh session secret.
// An existing file is left untouched.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Str("path", path).Msg("Config file already exists")
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	values, err := defaultValues()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := defaultConfig.Execute(&buf, values); err != nil {
		return fmt.Errorf("failed to render config template: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Str("path", path).Msg("Created default config file")
	return nil
}
