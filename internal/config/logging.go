// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/bookwish/internal/buildinfo"
)

// InitDefaultLogger sets up console logging before any config file is read.
func InitDefaultLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(consoleWriter())
}

// ApplyLogConfig applies logLevel and logPath. Called at startup and on every reload.
func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.Config.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writer := consoleWriter()
	if c.Config.LogPath != "" {
		rotator, err := newRotator(c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file, logging to stderr only")
		} else {
			writer = io.MultiWriter(writer, rotator)
		}
	}

	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// consoleWriter is human readable in dev builds and JSON otherwise.
func consoleWriter() io.Writer {
	if !buildinfo.IsDevBuild() {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

func newRotator(path string, maxSizeMB, maxBackups int) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: max(maxBackups, 0),
	}, nil
}
