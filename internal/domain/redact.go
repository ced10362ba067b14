// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

const redactedValue = "<redacted>"

// RedactString hides a secret for JSON responses. Empty values stay empty so
// clients can tell "unset" apart from "set".
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return redactedValue
}

// IsRedactedString reports whether s is the placeholder returned by RedactString.
func IsRedactedString(s string) bool {
	return s == redactedValue
}
