package bluesky

import (
	"strings"

	"github.com/hoophead/bsky-stream/internal/domain"
)

const profileBase = "https://bsky.app/profile"

// postView mirrors the subset of the AppView response shapes the stream
// cares about. searchPosts returns bare post views; getAuthorFeed wraps each
// post in a feed item. The nested Post pointer is the discriminant between
// the two variants.
type postView struct {
	URI       string `json:"uri"`
	IndexedAt string `json:"indexedAt"`
	Author    struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	Post *postView `json:"post,omitempty"`
}

type searchPostsResponse struct {
	Posts []postView `json:"posts"`
}

type authorFeedResponse struct {
	Feed []postView `json:"feed"`
}

type resolveHandleResponse struct {
	DID string `json:"did"`
}

// normalize maps either upstream variant onto the canonical post record. It
// never fails: absent fields degrade to empty values and the pipeline drops
// what it cannot use.
func normalize(view postView) domain.Post {
	v := view
	if view.Post != nil {
		v = *view.Post
	}

	createdAt := firstNonEmpty(v.Record.CreatedAt, v.IndexedAt)
	if createdAt == "" && v.Post != nil {
		createdAt = firstNonEmpty(v.Post.Record.CreatedAt, v.Post.IndexedAt)
	}

	p := domain.Post{
		URI:          v.URI,
		CreatedAt:    createdAt,
		Text:         v.Record.Text,
		AuthorHandle: v.Author.Handle,
	}

	// The permalink needs both the author handle and the record key, the
	// final path segment of the AT-URI.
	rkey := v.URI[strings.LastIndex(v.URI, "/")+1:]
	if p.AuthorHandle != "" && rkey != "" {
		p.URL = profileBase + "/" + p.AuthorHandle + "/post/" + rkey
	}
	return p
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
