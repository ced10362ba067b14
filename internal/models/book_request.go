// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/autobrr/bookwish/internal/dbinterface"
)

var (
	ErrBookRequestNotFound = errors.New("book request not found")
	ErrBookRequestExists   = errors.New("book already requested by this user")
)

// BookRequest is one user's wish for an audiobook. Several rows may share an ASIN.
type BookRequest struct {
	ID               int        `json:"id"`
	ASIN             string     `json:"asin"`
	Title            string     `json:"title"`
	Subtitle         *string    `json:"subtitle,omitempty"`
	Authors          []string   `json:"authors"`
	Narrators        []string   `json:"narrators"`
	CoverImage       *string    `json:"coverImage,omitempty"`
	ReleaseDate      *time.Time `json:"releaseDate,omitempty"`
	RuntimeLengthMin int        `json:"runtimeLengthMin"`
	UserUsername     *string    `json:"userUsername,omitempty"`
	Downloaded       bool       `json:"downloaded"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// SearchText is the free-text query sent to the indexer aggregator.
func (b *BookRequest) SearchText() string {
	return b.Title + " " + strings.Join(b.Authors, " ")
}

// WishlistEntry groups the rows of one ASIN.
type WishlistEntry struct {
	Book      *BookRequest `json:"book"`
	Requested []string     `json:"requestedBy"`
}

type BookRequestStore struct {
	db dbinterface.Querier

	commitAttempts uint
	commitDelay    time.Duration
}

func NewBookRequestStore(db dbinterface.Querier) *BookRequestStore {
	return &BookRequestStore{
		db:             db,
		commitAttempts: 5,
		commitDelay:    50 * time.Millisecond,
	}
}

const bookRequestColumns = `id, asin, title, subtitle, authors_json, narrators_json, cover_image,
	release_date, runtime_length_min, user_username, downloaded, created_at, updated_at`

func (s *BookRequestStore) Create(ctx context.Context, req *BookRequest) (*BookRequest, error) {
	if req == nil || strings.TrimSpace(req.ASIN) == "" {
		return nil, errors.New("asin is required")
	}

	authors, err := json.Marshal(nonNil(req.Authors))
	if err != nil {
		return nil, fmt.Errorf("encode authors: %w", err)
	}
	narrators, err := json.Marshal(nonNil(req.Narrators))
	if err != nil {
		return nil, fmt.Errorf("encode narrators: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO book_requests (asin, title, subtitle, authors_json, narrators_json, cover_image,
			release_date, runtime_length_min, user_username, downloaded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+bookRequestColumns,
		req.ASIN, req.Title, req.Subtitle, string(authors), string(narrators), req.CoverImage,
		req.ReleaseDate, req.RuntimeLengthMin, req.UserUsername, req.Downloaded)

	created, err := scanBookRequest(row)
	if isUniqueViolation(err) {
		return nil, ErrBookRequestExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert book request %s: %w", req.ASIN, err)
	}
	return created, nil
}

// GetByASIN returns the earliest row for asin.
func (s *BookRequestStore) GetByASIN(ctx context.Context, asin string) (*BookRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bookRequestColumns+`
		FROM book_requests
		WHERE asin = ?
		ORDER BY id
		LIMIT 1
	`, asin)

	book, err := scanBookRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book request %s: %w", asin, err)
	}
	return book, nil
}

func (s *BookRequestStore) ListByASIN(ctx context.Context, asin string) ([]*BookRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookRequestColumns+`
		FROM book_requests
		WHERE asin = ?
		ORDER BY id
	`, asin)
	if err != nil {
		return nil, fmt.Errorf("list book requests %s: %w", asin, err)
	}
	defer rows.Close()

	return collectBookRequests(rows)
}

// Wishlist returns one entry per ASIN, optionally only the ones not yet downloaded.
func (s *BookRequestStore) Wishlist(ctx context.Context, pendingOnly bool) ([]*WishlistEntry, error) {
	query := `SELECT ` + bookRequestColumns + ` FROM book_requests`
	if pendingOnly {
		query += ` WHERE downloaded = 0`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	defer rows.Close()

	books, err := collectBookRequests(rows)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*WishlistEntry)
	entries := make([]*WishlistEntry, 0)
	for _, book := range books {
		entry, ok := index[book.ASIN]
		if !ok {
			entry = &WishlistEntry{Book: book, Requested: []string{}}
			index[book.ASIN] = entry
			entries = append(entries, entry)
		}
		if book.UserUsername != nil {
			entry.Requested = append(entry.Requested, *book.UserUsername)
		}
	}

	return entries, nil
}

// MarkDownloaded flags every row for asin as fulfilled in one transaction.
// A busy database retries the whole transaction.
func (s *BookRequestStore) MarkDownloaded(ctx context.Context, asin string) (int64, error) {
	var affected int64

	err := retry.Do(
		func() error {
			n, err := s.markDownloadedTx(ctx, asin)
			if err != nil {
				return err
			}
			affected = n
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.commitAttempts),
		retry.Delay(s.commitDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isBusyError),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Str("asin", asin).Uint("attempt", n+1).Msg("Retrying fulfillment commit")
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("mark %s downloaded: %w", asin, err)
	}

	return affected, nil
}

func (s *BookRequestStore) markDownloadedTx(ctx context.Context, asin string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE book_requests
		SET downloaded = 1, updated_at = CURRENT_TIMESTAMP
		WHERE asin = ?
	`, asin)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return strings.Contains(err.Error(), "database is locked")
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookRequest(row rowScanner) (*BookRequest, error) {
	var (
		book          BookRequest
		subtitle      sql.NullString
		coverImage    sql.NullString
		userUsername  sql.NullString
		releaseDate   sql.NullTime
		authorsJSON   string
		narratorsJSON string
	)

	if err := row.Scan(
		&book.ID, &book.ASIN, &book.Title, &subtitle, &authorsJSON, &narratorsJSON, &coverImage,
		&releaseDate, &book.RuntimeLengthMin, &userUsername, &book.Downloaded, &book.CreatedAt, &book.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(authorsJSON), &book.Authors); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	if err := json.Unmarshal([]byte(narratorsJSON), &book.Narrators); err != nil {
		return nil, fmt.Errorf("decode narrators: %w", err)
	}

	if subtitle.Valid {
		book.Subtitle = &subtitle.String
	}
	if coverImage.Valid {
		book.CoverImage = &coverImage.String
	}
	if userUsername.Valid {
		book.UserUsername = &userUsername.String
	}
	if releaseDate.Valid {
		book.ReleaseDate = &releaseDate.Time
	}

	return &book, nil
}

func collectBookRequests(rows *sql.Rows) ([]*BookRequest, error) {
	books := make([]*BookRequest, 0)
	for rows.Next() {
		book, err := scanBookRequest(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
