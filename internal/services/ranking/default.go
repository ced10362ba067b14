// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/bookwish/internal/models"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
)

// maxFuzzyDistance is the worst fuzzy rank still treated as a title match.
const maxFuzzyDistance = 40

// Candidate is the environment a filter expression is evaluated against.
type Candidate struct {
	Protocol  string
	Title     string
	Indexer   string
	IndexerID int
	Size      int64
	SizeMB    float64
	Seeders   int
	Leechers  int
	// Grabs is -1 when unknown.
	Grabs   int
	Flags   []string
	AgeDays float64
}

func newCandidate(s prowlarr.Source, now time.Time) Candidate {
	age := 0.0
	if !s.PublishDate.IsZero() {
		age = now.Sub(s.PublishDate).Hours() / 24
	}
	return Candidate{
		Protocol:  string(s.Protocol),
		Title:     s.Title,
		Indexer:   s.Indexer,
		IndexerID: s.IndexerID,
		Size:      s.Size,
		SizeMB:    float64(s.Size) / (1 << 20),
		Seeders:   s.Seeders(),
		Leechers:  s.Leechers(),
		Grabs:     s.Grabs(),
		Flags:     append([]string{}, s.IndexerFlags...),
		AgeDays:   age,
	}
}

// CompileFilter validates a filter expression without building a ranker.
func CompileFilter(filter string) (*vm.Program, error) {
	if strings.TrimSpace(filter) == "" {
		return nil, nil
	}
	program, err := expr.Compile(filter, expr.Env(Candidate{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile ranking filter: %w", err)
	}
	return program, nil
}

// Default drops sources rejected by an optional filter expression, then orders the rest by
// title and author match, release hints, availability and recency.
type Default struct {
	filter  string
	program *vm.Program
	now     func() time.Time
}

type Option func(*Default)

// WithClock fixes the reference time used for AgeDays.
func WithClock(now func() time.Time) Option {
	return func(d *Default) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDefault(filter string, opts ...Option) (*Default, error) {
	program, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}

	d := &Default{filter: filter, program: program, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Default) Filter() string {
	return d.filter
}

type score struct {
	titleTier     int
	fuzzyDistance int
	authorMatch   bool
	dead          bool
	hints         int
	availability  int
	published     time.Time
	guid          string
}

func (d *Default) Rank(ctx context.Context, sources []prowlarr.Source, book *models.BookRequest) ([]prowlarr.Source, error) {
	if len(sources) == 0 {
		return []prowlarr.Source{}, nil
	}

	now := d.now()

	var (
		title   string
		authors []string
		year    int
	)
	if book != nil {
		title = fold(book.Title)
		for _, a := range book.Authors {
			if s := surname(a); s != "" {
				authors = append(authors, s)
			}
		}
		if book.ReleaseDate != nil {
			year = book.ReleaseDate.Year()
		}
	}

	type ranked struct {
		source prowlarr.Source
		score  score
	}

	kept := make([]ranked, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if d.program != nil {
			out, err := expr.Run(d.program, newCandidate(source, now))
			if err != nil {
				return nil, fmt.Errorf("evaluate ranking filter on %s: %w", source.GUID, err)
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}

		kept = append(kept, ranked{source: source, score: scoreSource(source, title, authors, year)})
	}

	slices.SortStableFunc(kept, func(a, b ranked) int {
		return compareScores(a.score, b.score)
	})

	out := make([]prowlarr.Source, len(kept))
	for i, r := range kept {
		out[i] = r.source
	}

	log.Trace().
		Int("candidates", len(sources)).
		Int("kept", len(out)).
		Str("filter", d.filter).
		Msg("Ranked sources")

	return out, nil
}

func scoreSource(source prowlarr.Source, title string, authors []string, year int) score {
	folded := fold(source.Title)

	s := score{
		titleTier:     2,
		fuzzyDistance: maxFuzzyDistance + 1,
		published:     source.PublishDate,
		guid:          source.GUID,
	}

	switch {
	case title == "":
	case containsWords(folded, title):
		s.titleTier = 0
		s.fuzzyDistance = len(folded) - len(title)
	case fuzzy.MatchNormalizedFold(title, folded):
		if rank := fuzzy.RankMatchNormalizedFold(title, folded); rank >= 0 && rank <= maxFuzzyDistance {
			s.titleTier = 1
			s.fuzzyDistance = rank
		}
	}

	for _, author := range authors {
		if containsWords(folded, author) {
			s.authorMatch = true
			break
		}
	}

	release := rls.ParseString(source.Title)
	if release.Type.String() == "audiobook" {
		s.hints += 2
	}
	if year > 0 && release.Year == year {
		s.hints++
	}
	if strings.Contains(folded, "m4b") || strings.Contains(folded, "unabridged") {
		s.hints++
	}
	if strings.Contains(folded, "abridged") && !strings.Contains(folded, "unabridged") {
		s.hints -= 2
	}
	if source.HasFlag("freeleech") {
		s.hints++
	}

	switch source.Protocol {
	case prowlarr.ProtocolTorrent:
		s.availability = source.Seeders()
		s.dead = s.availability == 0
	case prowlarr.ProtocolUsenet:
		s.availability = max(source.Grabs(), 0)
	}

	return s
}

func compareScores(a, b score) int {
	if c := cmp.Compare(a.titleTier, b.titleTier); c != 0 {
		return c
	}
	if a.authorMatch != b.authorMatch {
		if a.authorMatch {
			return -1
		}
		return 1
	}
	if a.dead != b.dead {
		if b.dead {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.hints, a.hints); c != 0 {
		return c
	}
	if c := cmp.Compare(a.fuzzyDistance, b.fuzzyDistance); c != 0 {
		return c
	}
	if c := cmp.Compare(b.availability, a.availability); c != 0 {
		return c
	}
	if c := b.published.Compare(a.published); c != 0 {
		return c
	}
	return strings.Compare(a.guid, b.guid)
}

// Describe renders a one-line explanation of where a source landed, for the CLI.
func Describe(source prowlarr.Source) string {
	switch source.Protocol {
	case prowlarr.ProtocolTorrent:
		return source.Indexer + " seeders=" + strconv.Itoa(source.Seeders())
	case prowlarr.ProtocolUsenet:
		if source.Usenet != nil && source.Usenet.Grabs != nil {
			return source.Indexer + " grabs=" + strconv.Itoa(*source.Usenet.Grabs)
		}
		return source.Indexer + " grabs=?"
	default:
		return source.Indexer
	}
}
