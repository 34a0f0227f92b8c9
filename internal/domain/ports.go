package domain

import "context"

// AppViewClient defines the upstream calls the stream service depends on.
// All methods are read-only GETs against public XRPC endpoints and return
// normalized posts.
type AppViewClient interface {
	// SearchPosts runs a term search scoped to a single account, newest
	// first.
	SearchPosts(ctx context.Context, term, actor string, limit int) ([]Post, error)

	// AuthorFeed fetches an account's recent feed, unscoped by term.
	AuthorFeed(ctx context.Context, actor string, limit int) ([]Post, error)

	// ResolveHandle resolves a handle to its DID.
	ResolveHandle(ctx context.Context, handle string) (string, error)
}
