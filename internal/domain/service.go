package domain

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// searchLimit caps results per term-scoped search call.
	searchLimit = 25

	// feedLimit caps results per author-feed fallback call. Larger than
	// searchLimit because the feed is term-unscoped and most of it gets
	// filtered out.
	feedLimit = 50

	defaultMaxInFlight = 8
)

// StreamQuery is the parsed, validated input for one stream request.
type StreamQuery struct {
	// Terms are the lower-cased search terms. At least one is required.
	Terms []string

	// Reporters is the resolved working set of accounts to query.
	Reporters []Reporter

	// Window is the trailing span within which a post must have been
	// created to be eligible.
	Window time.Duration
}

// StreamService aggregates recent posts from tracked reporters matching a
// set of keyword queries. It owns the search fan-out, the feed fallback, and
// the filter/dedupe/sort pipeline.
type StreamService struct {
	client      AppViewClient
	logger      *slog.Logger
	maxInFlight int
}

// NewStreamService creates a StreamService. maxInFlight caps concurrent
// upstream calls per request; values <= 0 use the default.
func NewStreamService(client AppViewClient, logger *slog.Logger, maxInFlight int) *StreamService {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &StreamService{
		client:      client,
		logger:      logger,
		maxInFlight: maxInFlight,
	}
}

// ResolveReporters produces the working account set for the given handles,
// order-preserving. Handles present in the known handle→DID mapping are used
// without a network call; the rest are resolved live. Handles that fail to
// resolve are logged and skipped, so the result may be shorter than the
// input.
func (s *StreamService) ResolveReporters(ctx context.Context, handles []string, known map[string]string) []Reporter {
	out := make([]Reporter, 0, len(handles))
	for _, h := range handles {
		if did, ok := known[h]; ok && did != "" {
			out = append(out, Reporter{Handle: h, DID: did})
			continue
		}
		did, err := s.client.ResolveHandle(ctx, h)
		if err != nil {
			s.logger.Warn("skipping unresolvable reporter", "handle", h, "error", err)
			continue
		}
		out = append(out, Reporter{Handle: h, DID: did})
	}
	return out
}

// pairResult is the outcome of one (reporter, term) search unit. Failures
// are recorded here and discarded during aggregation rather than propagated,
// so one bad call never aborts the batch.
type pairResult struct {
	posts []Post
	err   error
}

type searchPair struct {
	reporter Reporter
	term     string
}

// Stream runs the full aggregation: one search per (reporter, term) pair
// with an author-feed fallback, then the window, permalink and keyword
// filters, dedupe by URI, and a newest-first sort. Upstream failures degrade
// to fewer (possibly zero) posts, never to an error.
func (s *StreamService) Stream(ctx context.Context, q StreamQuery) []Post {
	pairs := make([]searchPair, 0, len(q.Reporters)*len(q.Terms))
	for _, rep := range q.Reporters {
		for _, term := range q.Terms {
			pairs = append(pairs, searchPair{reporter: rep, term: term})
		}
	}

	results := make([]pairResult, len(pairs))
	g := new(errgroup.Group)
	g.SetLimit(s.maxInFlight)
	for i, p := range pairs {
		g.Go(func() error {
			results[i] = s.search(ctx, p)
			return nil
		})
	}
	g.Wait()

	var collected []Post
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		collected = append(collected, r.posts...)
	}
	if failed > 0 {
		s.logger.Info("search batch had failures", "failed", failed, "pairs", len(pairs))
	}

	return refine(collected, q.Terms, time.Now().Add(-q.Window))
}

// search queries one (reporter, term) unit: the term-scoped search first,
// then the reporter's general feed when the search fails or comes back
// empty. The feed path is term-unscoped upstream; the keyword filter in
// refine does the selection for it.
func (s *StreamService) search(ctx context.Context, p searchPair) pairResult {
	posts, err := s.client.SearchPosts(ctx, p.term, p.reporter.DID, searchLimit)
	if err == nil && len(posts) > 0 {
		return pairResult{posts: posts}
	}
	if err != nil {
		s.logger.Debug("search failed, falling back to author feed",
			"handle", p.reporter.Handle, "term", p.term, "error", err)
	}

	posts, err = s.client.AuthorFeed(ctx, p.reporter.DID, feedLimit)
	if err != nil {
		return pairResult{err: err}
	}
	return pairResult{posts: posts}
}

// refine applies the stream filters in order: recency window, permalink
// presence, keyword containment, dedupe by URI (first occurrence wins), then
// a stable newest-first sort. Posts with a missing or malformed timestamp
// are dropped by the window filter.
func refine(posts []Post, terms []string, since time.Time) []Post {
	kept := make([]Post, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		t, ok := p.CreatedTime()
		if !ok || t.Before(since) {
			continue
		}
		if p.URL == "" {
			continue
		}
		if !matchesAny(p.Text, terms) {
			continue
		}
		if _, dup := seen[p.URI]; dup {
			continue
		}
		seen[p.URI] = struct{}{}
		kept = append(kept, p)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		ti, _ := kept[i].CreatedTime()
		tj, _ := kept[j].CreatedTime()
		return ti.After(tj)
	})
	return kept
}

// matchesAny reports whether text contains at least one of the terms as a
// case-insensitive substring. Terms are already lower-cased by the request
// parser.
func matchesAny(text string, terms []string) bool {
	lowered := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			return true
		}
	}
	return false
}
