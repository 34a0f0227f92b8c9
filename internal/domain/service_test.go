package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a scripted AppViewClient. Search and feed results are keyed
// by actor (and term for searches); a mutex guards call counters because the
// stream fans out concurrently.
type fakeClient struct {
	mu sync.Mutex

	searchResults map[string][]Post // keyed actor + "|" + term
	searchErrs    map[string]error
	feedResults   map[string][]Post // keyed actor
	feedErrs      map[string]error
	dids          map[string]string

	searchCalls  []string
	feedCalls    []string
	resolveCalls int
}

func (f *fakeClient) SearchPosts(_ context.Context, term, actor string, _ int) ([]Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := actor + "|" + term
	f.searchCalls = append(f.searchCalls, key)
	if err := f.searchErrs[key]; err != nil {
		return nil, err
	}
	return f.searchResults[key], nil
}

func (f *fakeClient) AuthorFeed(_ context.Context, actor string, _ int) ([]Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedCalls = append(f.feedCalls, actor)
	if err := f.feedErrs[actor]; err != nil {
		return nil, err
	}
	return f.feedResults[actor], nil
}

func (f *fakeClient) ResolveHandle(_ context.Context, handle string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	did, ok := f.dids[handle]
	if !ok {
		return "", errors.New("handle not found")
	}
	return did, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makePost(uri, handle, createdAt, text string) Post {
	p := Post{
		URI:          uri,
		CreatedAt:    createdAt,
		Text:         text,
		AuthorHandle: handle,
	}
	if handle != "" {
		p.URL = "https://bsky.app/profile/" + handle + "/post/" + uri
	}
	return p
}

func TestRefine(t *testing.T) {
	// Truncate so the exact-boundary case survives RFC 3339 round-tripping.
	now := time.Now().UTC().Truncate(time.Second)
	since := now.Add(-7 * 24 * time.Hour)
	stamp := func(d time.Duration) string {
		return now.Add(d).Format(time.RFC3339)
	}

	tests := []struct {
		name     string
		posts    []Post
		terms    []string
		wantURIs []string
	}{
		{
			name: "window boundary",
			posts: []Post{
				makePost("a", "alice.test", stamp(-7*24*time.Hour+time.Second), "luka highlights"),
				makePost("b", "alice.test", stamp(-7*24*time.Hour-time.Second), "luka highlights"),
				makePost("c", "alice.test", since.Format(time.RFC3339), "luka highlights"),
			},
			terms:    []string{"luka"},
			wantURIs: []string{"a", "c"},
		},
		{
			name: "missing or malformed timestamps dropped",
			posts: []Post{
				makePost("a", "alice.test", "", "luka"),
				makePost("b", "alice.test", "not-a-timestamp", "luka"),
				makePost("c", "alice.test", stamp(-time.Hour), "luka"),
			},
			terms:    []string{"luka"},
			wantURIs: []string{"c"},
		},
		{
			name: "missing permalink dropped",
			posts: []Post{
				makePost("a", "", stamp(-time.Hour), "luka"),
				makePost("b", "alice.test", stamp(-time.Hour), "luka"),
			},
			terms:    []string{"luka"},
			wantURIs: []string{"b"},
		},
		{
			name: "keyword match is case-insensitive containment",
			posts: []Post{
				makePost("a", "alice.test", stamp(-time.Hour), "Luka for MVP"),
				makePost("b", "alice.test", stamp(-time.Hour), "nothing relevant"),
				makePost("c", "alice.test", stamp(-time.Hour), "DONCIC drops 40"),
			},
			terms:    []string{"luka", "doncic"},
			wantURIs: []string{"a", "c"},
		},
		{
			name: "dedupe keeps first occurrence",
			posts: []Post{
				makePost("a", "alice.test", stamp(-time.Hour), "luka first"),
				makePost("a", "alice.test", stamp(-2*time.Hour), "luka second"),
				makePost("b", "alice.test", stamp(-3*time.Hour), "luka third"),
			},
			terms:    []string{"luka"},
			wantURIs: []string{"a", "b"},
		},
		{
			name: "sorted newest first",
			posts: []Post{
				makePost("old", "alice.test", stamp(-48*time.Hour), "luka"),
				makePost("new", "alice.test", stamp(-time.Hour), "luka"),
				makePost("mid", "alice.test", stamp(-24*time.Hour), "luka"),
			},
			terms:    []string{"luka"},
			wantURIs: []string{"new", "mid", "old"},
		},
		{
			name: "equal timestamps retain collection order",
			posts: []Post{
				makePost("a", "alice.test", stamp(-time.Hour), "luka"),
				makePost("b", "alice.test", stamp(-time.Hour), "luka"),
				makePost("c", "alice.test", stamp(-time.Hour), "luka"),
			},
			terms:    []string{"luka"},
			wantURIs: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := refine(tt.posts, tt.terms, since)
			uris := make([]string, len(got))
			for i, p := range got {
				uris[i] = p.URI
			}
			assert.Equal(t, tt.wantURIs, uris)
		})
	}
}

func TestRefine_Idempotent(t *testing.T) {
	now := time.Now().UTC()
	since := now.Add(-7 * 24 * time.Hour)
	posts := []Post{
		makePost("a", "alice.test", now.Add(-time.Hour).Format(time.RFC3339), "luka first"),
		makePost("a", "bob.test", now.Add(-2*time.Hour).Format(time.RFC3339), "luka duplicate"),
	}

	once := refine(posts, []string{"luka"}, since)
	twice := refine(once, []string{"luka"}, since)

	require.Len(t, twice, 1)
	assert.Equal(t, "luka first", twice[0].Text)
	assert.Equal(t, once, twice)
}

func TestResolveReporters(t *testing.T) {
	client := &fakeClient{
		dids: map[string]string{"bob.test": "did:plc:bob"},
	}
	svc := NewStreamService(client, testLogger(), 1)

	known := map[string]string{"alice.test": "did:plc:alice"}
	got := svc.ResolveReporters(context.Background(), []string{"alice.test", "bob.test", "ghost.test"}, known)

	// alice comes from the mapping, bob resolves live, ghost is skipped.
	assert.Equal(t, []Reporter{
		{Handle: "alice.test", DID: "did:plc:alice"},
		{Handle: "bob.test", DID: "did:plc:bob"},
	}, got)
	assert.Equal(t, 2, client.resolveCalls, "known handles must not hit the network")
}

func TestStream_FallbackOnSearchFailure(t *testing.T) {
	now := time.Now().UTC()
	feedPost := makePost("f1", "alice.test", now.Add(-time.Hour).Format(time.RFC3339), "mvp race update")

	client := &fakeClient{
		searchErrs:  map[string]error{"did:plc:alice|mvp": errors.New("status 500")},
		feedResults: map[string][]Post{"did:plc:alice": {feedPost}},
	}
	svc := NewStreamService(client, testLogger(), 1)

	got := svc.Stream(context.Background(), StreamQuery{
		Terms:     []string{"mvp"},
		Reporters: []Reporter{{Handle: "alice.test", DID: "did:plc:alice"}},
		Window:    7 * 24 * time.Hour,
	})

	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].URI)
	assert.Equal(t, []string{"did:plc:alice"}, client.feedCalls, "feed fallback must be attempted")
}

func TestStream_FallbackOnEmptySearch(t *testing.T) {
	now := time.Now().UTC()
	feedPost := makePost("f1", "alice.test", now.Add(-time.Hour).Format(time.RFC3339), "luka injury news")

	client := &fakeClient{
		feedResults: map[string][]Post{"did:plc:alice": {feedPost}},
	}
	svc := NewStreamService(client, testLogger(), 1)

	got := svc.Stream(context.Background(), StreamQuery{
		Terms:     []string{"luka"},
		Reporters: []Reporter{{Handle: "alice.test", DID: "did:plc:alice"}},
		Window:    7 * 24 * time.Hour,
	})

	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].URI)
}

func TestStream_PairFailureIsIsolated(t *testing.T) {
	now := time.Now().UTC()
	goodPost := makePost("g1", "bob.test", now.Add(-time.Hour).Format(time.RFC3339), "luka takes over")

	client := &fakeClient{
		searchErrs: map[string]error{"did:plc:alice|luka": errors.New("status 502")},
		feedErrs:   map[string]error{"did:plc:alice": errors.New("status 502")},
		searchResults: map[string][]Post{
			"did:plc:bob|luka": {goodPost},
		},
	}
	svc := NewStreamService(client, testLogger(), 2)

	got := svc.Stream(context.Background(), StreamQuery{
		Terms: []string{"luka"},
		Reporters: []Reporter{
			{Handle: "alice.test", DID: "did:plc:alice"},
			{Handle: "bob.test", DID: "did:plc:bob"},
		},
		Window: 7 * 24 * time.Hour,
	})

	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].URI)
}

func TestStream_EndToEnd(t *testing.T) {
	now := time.Now().UTC()
	recent := makePost("p1", "acct1.test", now.Add(-2*24*time.Hour).Format(time.RFC3339), "Luka drops 40")
	stale := makePost("p2", "acct1.test", now.Add(-10*24*time.Hour).Format(time.RFC3339), "Doncic trade rumors")

	client := &fakeClient{
		searchResults: map[string][]Post{
			"did:plc:acct1|doncic": {recent, stale},
			"did:plc:acct1|luka":   {recent, stale},
		},
	}
	svc := NewStreamService(client, testLogger(), 4)

	got := svc.Stream(context.Background(), StreamQuery{
		Terms:     []string{"doncic", "luka"},
		Reporters: []Reporter{{Handle: "acct1.test", DID: "did:plc:acct1"}},
		Window:    7 * 24 * time.Hour,
	})

	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].URI)
	assert.Equal(t, "Luka drops 40", got[0].Text)
}

func TestStream_AllUpstreamDownYieldsEmpty(t *testing.T) {
	client := &fakeClient{
		searchErrs: map[string]error{"did:plc:alice|luka": errors.New("down")},
		feedErrs:   map[string]error{"did:plc:alice": errors.New("down")},
	}
	svc := NewStreamService(client, testLogger(), 1)

	got := svc.Stream(context.Background(), StreamQuery{
		Terms:     []string{"luka"},
		Reporters: []Reporter{{Handle: "alice.test", DID: "did:plc:alice"}},
		Window:    7 * 24 * time.Hour,
	})

	assert.Empty(t, got)
}
