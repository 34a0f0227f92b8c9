package domain

import "time"

// Post is the canonical record produced from either upstream response shape.
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	// It is the dedupe identity and is never re-derived or mutated.
	URI string

	// URL is the public bsky.app permalink. Empty when the author handle or
	// record key could not be determined; such posts are dropped by the
	// pipeline.
	URL string

	// CreatedAt is the raw timestamp string reported by the AppView. May be
	// empty.
	CreatedAt string

	// Text is the post body used for keyword matching.
	Text string

	// AuthorHandle is the author's handle (e.g. alice.bsky.social).
	AuthorHandle string
}

// CreatedTime parses CreatedAt as RFC 3339. ok is false when the timestamp
// is missing or malformed.
func (p Post) CreatedTime() (time.Time, bool) {
	if p.CreatedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
