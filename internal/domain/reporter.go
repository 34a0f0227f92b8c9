package domain

// Reporter is a tracked account whose posts are searched. The JSON tags match
// the persisted reporters file.
type Reporter struct {
	// Handle is the human-readable account name.
	Handle string `json:"handle"`

	// DID is the stable account identifier. Empty until resolved; once known
	// it is treated as immutable.
	DID string `json:"did,omitempty"`
}
