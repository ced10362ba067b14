// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package prowlarr

import (
	"net/http"
	"time"
)

// Protocol discriminates the Source variants.
type Protocol string

const (
	ProtocolTorrent Protocol = "torrent"
	ProtocolUsenet  Protocol = "usenet"
)

func (p Protocol) Valid() bool {
	return p == ProtocolTorrent || p == ProtocolUsenet
}

// Source is one downloadable copy of a work as reported by an indexer.
// Exactly one of Torrent or Usenet is set, matching Protocol.
type Source struct {
	Protocol     Protocol  `json:"protocol"`
	GUID         string    `json:"guid"`
	IndexerID    int       `json:"indexerId"`
	Indexer      string    `json:"indexer"`
	Title        string    `json:"title"`
	Size         int64     `json:"size"`
	InfoURL      string    `json:"infoUrl"`
	DownloadURL  *string   `json:"downloadUrl,omitempty"`
	MagnetURL    *string   `json:"magnetUrl,omitempty"`
	PublishDate  time.Time `json:"publishDate"`
	IndexerFlags []string  `json:"indexerFlags"`

	Torrent *TorrentInfo `json:"torrent,omitempty"`
	Usenet  *UsenetInfo  `json:"usenet,omitempty"`
}

type TorrentInfo struct {
	Seeders  int `json:"seeders"`
	Leechers int `json:"leechers"`
}

type UsenetInfo struct {
	// Grabs stays nil when the indexer does not report it.
	Grabs *int `json:"grabs,omitempty"`
}

// Seeders returns 0 for usenet sources.
func (s Source) Seeders() int {
	if s.Torrent == nil {
		return 0
	}
	return s.Torrent.Seeders
}

func (s Source) Leechers() int {
	if s.Torrent == nil {
		return 0
	}
	return s.Torrent.Leechers
}

// Grabs returns -1 when unknown or when the source is a torrent.
func (s Source) Grabs() int {
	if s.Usenet == nil || s.Usenet.Grabs == nil {
		return -1
	}
	return *s.Usenet.Grabs
}

func (s Source) HasFlag(flag string) bool {
	for _, f := range s.IndexerFlags {
		if f == flag {
			return true
		}
	}
	return false
}

func (s Source) clone() Source {
	out := s
	if s.IndexerFlags != nil {
		out.IndexerFlags = append([]string(nil), s.IndexerFlags...)
	}
	if s.DownloadURL != nil {
		v := *s.DownloadURL
		out.DownloadURL = &v
	}
	if s.MagnetURL != nil {
		v := *s.MagnetURL
		out.MagnetURL = &v
	}
	if s.Torrent != nil {
		t := *s.Torrent
		out.Torrent = &t
	}
	if s.Usenet != nil {
		u := UsenetInfo{}
		if s.Usenet.Grabs != nil {
			g := *s.Usenet.Grabs
			u.Grabs = &g
		}
		out.Usenet = &u
	}
	return out
}

// CloneSources deep-copies sources.
func CloneSources(in []Source) []Source {
	if in == nil {
		return nil
	}
	out := make([]Source, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}

// searchResult mirrors one element of the /api/v1/search response.
type searchResult struct {
	GUID         string   `json:"guid"`
	IndexerID    int      `json:"indexerId"`
	Indexer      string   `json:"indexer"`
	Title        string   `json:"title"`
	Protocol     string   `json:"protocol"`
	PublishDate  string   `json:"publishDate"`
	InfoURL      string   `json:"infoUrl"`
	Size         int64    `json:"size"`
	Seeders      int      `json:"seeders"`
	Leechers     int      `json:"leechers"`
	Grabs        *int     `json:"grabs"`
	IndexerFlags []string `json:"indexerFlags"`
	DownloadURL  *string  `json:"downloadUrl"`
	MagnetURL    *string  `json:"magnetUrl"`
}

type downloadRequest struct {
	GUID      string `json:"guid"`
	IndexerID int    `json:"indexerId"`
}

// DownloadResponse is the raw outcome of a download trigger. Callers decide what counts as success.
type DownloadResponse struct {
	StatusCode int
	Body       []byte
}

func (r *DownloadResponse) OK() bool {
	return r != nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}
