// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"errors"
	"fmt"
)

var ErrBookNotFound = errors.New("book not found")

// DownloadFailedError means the download trigger did not reach a success status: Prowlarr answered
// with a non-success status, or could not be reached at all (StatusCode 0, Err set).
type DownloadFailedError struct {
	ASIN       string
	GUID       string
	IndexerID  int
	StatusCode int
	Err        error
}

func (e *DownloadFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download of %s (indexer %d) for %s failed: %v", e.GUID, e.IndexerID, e.ASIN, e.Err)
	}
	return fmt.Sprintf("download of %s (indexer %d) for %s failed with status %d", e.GUID, e.IndexerID, e.ASIN, e.StatusCode)
}

func (e *DownloadFailedError) Unwrap() error {
	return e.Err
}
