// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/ranking"
)

// Aggregator is the subset of prowlarr.Client the service drives.
type Aggregator interface {
	Search(ctx context.Context, query string, indexerIDs []int, forceRefresh bool) ([]prowlarr.Source, error)
	StartDownload(ctx context.Context, guid string, indexerID int) (*prowlarr.DownloadResponse, error)
}

// BookStore resolves and fulfils book requests.
type BookStore interface {
	GetByASIN(ctx context.Context, asin string) (*models.BookRequest, error)
	MarkDownloaded(ctx context.Context, asin string) (int64, error)
}

// ConfigValidator reports whether Prowlarr is usable.
type ConfigValidator interface {
	Validate(ctx context.Context) error
}

// Flusher empties the source cache.
type Flusher interface {
	Flush()
}

type Config struct {
	// RefreshTimeout bounds background refreshes started by RefreshAsync.
	RefreshTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{RefreshTimeout: 2 * time.Minute}
}

type QueryOptions struct {
	ForceRefresh      bool `json:"forceRefresh"`
	StartAutoDownload bool `json:"startAutoDownload"`
}

// covers reports whether a call made with o also satisfies a caller asking for other.
func (o QueryOptions) covers(other QueryOptions) bool {
	return (o.ForceRefresh || !other.ForceRefresh) &&
		(o.StartAutoDownload || !other.StartAutoDownload)
}

type QueryResult struct {
	Sources []prowlarr.Source   `json:"sources"`
	Book    *models.BookRequest `json:"book"`
	// Started is the source handed to Prowlarr by an auto download, if any.
	Started *prowlarr.Source `json:"started,omitempty"`
}

func (r *QueryResult) clone() *QueryResult {
	if r == nil {
		return nil
	}
	out := &QueryResult{Sources: prowlarr.CloneSources(r.Sources)}
	if out.Sources == nil {
		out.Sources = []prowlarr.Source{}
	}
	if r.Book != nil {
		book := *r.Book
		book.Authors = append([]string(nil), r.Book.Authors...)
		book.Narrators = append([]string(nil), r.Book.Narrators...)
		out.Book = &book
	}
	if r.Started != nil {
		started := prowlarr.CloneSources([]prowlarr.Source{*r.Started})[0]
		out.Started = &started
	}
	return out
}

type flight struct {
	opts   QueryOptions
	result *QueryResult
	// leaderGone is set when the caller that ran the query went away before it finished.
	leaderGone bool
}

// Service finds, ranks and optionally downloads sources for requested books.
// Concurrent queries for the same ASIN share one in-flight call.
type Service struct {
	cfg    Config
	config ConfigValidator
	client Aggregator
	cache  Flusher
	books  BookStore
	ranker ranking.Ranker
	guard  *Guard
	group  singleflight.Group

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
	spawn      func(func())
}

func NewService(cfg Config, config ConfigValidator, client Aggregator, cache Flusher, books BookStore, ranker ranking.Ranker) *Service {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultConfig().RefreshTimeout
	}
	if ranker == nil {
		ranker = ranking.Identity
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Service{
		cfg:        cfg,
		config:     config,
		client:     client,
		cache:      cache,
		books:      books,
		ranker:     ranker,
		guard:      NewGuard(),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		spawn:      func(fn func()) { go fn() },
	}
}

// QuerySources returns ranked sources for asin. With StartAutoDownload set, the best source of an
// unfulfilled book is sent to Prowlarr and every request row for asin is marked downloaded.
func (s *Service) QuerySources(ctx context.Context, asin string, opts QueryOptions) (*QueryResult, error) {
	for {
		ch := s.group.DoChan(asin, func() (any, error) {
			var result *QueryResult
			err := s.guard.With(asin, func() error {
				var err error
				result, err = s.query(ctx, asin, opts)
				return err
			})
			return &flight{opts: opts, result: result, leaderGone: ctx.Err() != nil}, err
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}

		f, _ := res.Val.(*flight)

		if res.Err != nil {
			// Upstream timeouts also satisfy isCanceled; only the leader's own cancellation is retried.
			if res.Shared && f != nil && f.leaderGone && ctx.Err() == nil {
				log.Debug().Str("asin", asin).Msg("Shared source query was canceled, retrying")
				continue
			}
			return nil, res.Err
		}

		if f == nil || !f.opts.covers(opts) {
			log.Debug().
				Str("asin", asin).
				Bool("forceRefresh", opts.ForceRefresh).
				Bool("autoDownload", opts.StartAutoDownload).
				Msg("Shared source query did not cover request, running again")
			continue
		}

		if res.Shared {
			return f.result.clone(), nil
		}
		return f.result, nil
	}
}

func (s *Service) query(ctx context.Context, asin string, opts QueryOptions) (*QueryResult, error) {
	if err := s.config.Validate(ctx); err != nil {
		return nil, err
	}

	book, err := s.lookupBook(ctx, asin)
	if err != nil {
		return nil, err
	}

	sources, err := s.client.Search(ctx, book.SearchText(), nil, opts.ForceRefresh)
	if err != nil {
		return nil, fmt.Errorf("search sources for %s: %w", asin, err)
	}

	ranked, err := s.ranker.Rank(ctx, sources, book)
	if err != nil {
		return nil, fmt.Errorf("rank sources for %s: %w", asin, err)
	}
	if ranked == nil {
		ranked = []prowlarr.Source{}
	}

	result := &QueryResult{Sources: ranked, Book: book}

	if opts.StartAutoDownload && !book.Downloaded && len(ranked) > 0 {
		top := ranked[0]
		if err := s.download(ctx, asin, top); err != nil {
			return nil, err
		}
		book.Downloaded = true
		result.Started = &top

		log.Info().
			Str("asin", asin).
			Str("guid", top.GUID).
			Str("indexer", top.Indexer).
			Msg("Auto download started")
	}

	log.Debug().
		Str("asin", asin).
		Int("sources", len(ranked)).
		Bool("forceRefresh", opts.ForceRefresh).
		Msg("Sources queried")

	return result, nil
}

// DownloadSource sends a chosen source to Prowlarr and marks asin downloaded on success.
func (s *Service) DownloadSource(ctx context.Context, asin, guid string, indexerID int) error {
	if err := s.config.Validate(ctx); err != nil {
		return err
	}
	if _, err := s.lookupBook(ctx, asin); err != nil {
		return err
	}
	return s.download(ctx, asin, prowlarr.Source{GUID: guid, IndexerID: indexerID})
}

func (s *Service) download(ctx context.Context, asin string, source prowlarr.Source) error {
	resp, err := s.client.StartDownload(ctx, source.GUID, source.IndexerID)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, prowlarr.ErrMisconfigured) {
			return fmt.Errorf("start download for %s: %w", asin, err)
		}
		return &DownloadFailedError{
			ASIN:      asin,
			GUID:      source.GUID,
			IndexerID: source.IndexerID,
			Err:       err,
		}
	}
	if !resp.OK() {
		return &DownloadFailedError{
			ASIN:       asin,
			GUID:       source.GUID,
			IndexerID:  source.IndexerID,
			StatusCode: resp.StatusCode,
		}
	}

	affected, err := s.books.MarkDownloaded(ctx, asin)
	if err != nil {
		return err
	}

	log.Debug().Str("asin", asin).Int64("rows", affected).Msg("Book requests marked downloaded")
	return nil
}

func (s *Service) lookupBook(ctx context.Context, asin string) (*models.BookRequest, error) {
	book, err := s.books.GetByASIN(ctx, asin)
	if errors.Is(err, models.ErrBookRequestNotFound) {
		return nil, fmt.Errorf("%w: %s: %w", ErrBookNotFound, asin, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load book %s: %w", asin, err)
	}
	return book, nil
}

// RefreshAsync queries asin in the background, warming the source cache. Errors are logged.
func (s *Service) RefreshAsync(asin string, force bool) {
	s.wg.Add(1)
	s.spawn(func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RefreshTimeout)
		defer cancel()

		result, err := s.QuerySources(ctx, asin, QueryOptions{ForceRefresh: force})
		if err != nil {
			if isCanceled(err) && s.baseCtx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("asin", asin).Msg("Background source refresh failed")
			return
		}

		log.Debug().Str("asin", asin).Int("sources", len(result.Sources)).Msg("Background source refresh finished")
	})
}

func (s *Service) IsQuerying(asin string) bool {
	return s.guard.InFlight(asin)
}

func (s *Service) InFlight() []string {
	return s.guard.List()
}

func (s *Service) InFlightCount() int {
	return s.guard.Len()
}

func (s *Service) FlushCache() {
	s.cache.Flush()
	log.Info().Msg("Source cache flushed")
}

// Close cancels background refreshes and waits for them to return.
func (s *Service) Close() {
	s.cancelBase()
	s.wg.Wait()
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
