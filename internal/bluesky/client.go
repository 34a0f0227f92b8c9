package bluesky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hoophead/bsky-stream/internal/domain"
)

const defaultAppView = "https://public.api.bsky.app/xrpc"

// Client is a minimal Bluesky AppView client covering the read-only XRPC
// calls the stream service needs. It implements domain.AppViewClient.
type Client struct {
	base       string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an AppView client. If base is empty it defaults to the
// public AppView. token is an optional bearer token; the public read
// endpoints do not require one, and an empty token simply omits the header.
func NewClient(base, token string) *Client {
	if base == "" {
		base = defaultAppView
	}
	return &Client{
		base:  base,
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// The AppView rate-limits per IP; one request fans out over every
		// (reporter, term) pair, so pace the calls.
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

// SearchPosts runs app.bsky.feed.searchPosts scoped to a single account,
// newest first.
func (c *Client) SearchPosts(ctx context.Context, term, actor string, limit int) ([]domain.Post, error) {
	var resp searchPostsResponse
	err := c.get(ctx, "/app.bsky.feed.searchPosts", url.Values{
		"q":      {term},
		"author": {actor},
		"limit":  {strconv.Itoa(limit)},
		"sort":   {"latest"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}

	posts := make([]domain.Post, 0, len(resp.Posts))
	for _, v := range resp.Posts {
		posts = append(posts, normalize(v))
	}
	return posts, nil
}

// AuthorFeed runs app.bsky.feed.getAuthorFeed, the term-unscoped fallback
// retrieval path.
func (c *Client) AuthorFeed(ctx context.Context, actor string, limit int) ([]domain.Post, error) {
	var resp authorFeedResponse
	err := c.get(ctx, "/app.bsky.feed.getAuthorFeed", url.Values{
		"actor": {actor},
		"limit": {strconv.Itoa(limit)},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get author feed: %w", err)
	}

	posts := make([]domain.Post, 0, len(resp.Feed))
	for _, v := range resp.Feed {
		posts = append(posts, normalize(v))
	}
	return posts, nil
}

// ResolveHandle runs com.atproto.identity.resolveHandle.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var resp resolveHandleResponse
	err := c.get(ctx, "/com.atproto.identity.resolveHandle", url.Values{
		"handle": {handle},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("resolve handle %q: %w", handle, err)
	}
	return resp.DID, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
