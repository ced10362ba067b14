// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent is sent on every outbound request to Prowlarr.
var UserAgent = fmt.Sprintf("bookwish/%s", Version)

// IsDevBuild reports whether the running binary is a development build.
// Anything that does not parse as a plain semantic version counts as dev.
func IsDevBuild() bool {
	return isDevVersion(Version)
}

func isDevVersion(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" || v == "dev" || strings.HasSuffix(v, "-dev") {
		return true
	}

	parsed, err := semver.NewVersion(v)
	if err != nil {
		return true
	}

	return parsed.Prerelease() != ""
}
