// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"errors"
	"fmt"
)

// ErrMisconfigured is returned before any network call when the base URL or API key is missing.
var ErrMisconfigured = errors.New("prowlarr is not configured")

// UpstreamError reports a non-2xx status or an unreadable body from Prowlarr.
type UpstreamError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prowlarr request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("prowlarr request to %s returned status %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
