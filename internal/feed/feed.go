package feed

import (
	"fmt"
	"time"
)

// Kind identifies one of the remote content feeds. Each kind is stored in its
// own table, so synchronizers for different kinds never touch the same rows.
type Kind int

const (
	Announcements Kind = iota
	BlogPosts
)

// Kinds lists every known feed kind in a stable order.
var Kinds = []Kind{Announcements, BlogPosts}

// String returns the identifier used in config, logs and the CLI
func (k Kind) String() string {
	switch k {
	case Announcements:
		return "announcements"
	case BlogPosts:
		return "blog_posts"
	default:
		return "unknown"
	}
}

// Label returns a human readable plural noun for notifications
func (k Kind) Label() string {
	switch k {
	case Announcements:
		return "announcements"
	case BlogPosts:
		return "blog posts"
	default:
		return "items"
	}
}

// ParseKind resolves a kind from its String form. "blog" is accepted as a
// shorthand for blog_posts.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "announcements", "announcement":
		return Announcements, nil
	case "blog_posts", "blog", "blog-posts":
		return BlogPosts, nil
	default:
		return 0, fmt.Errorf("unknown feed kind: %q (must be announcements or blog_posts)", s)
	}
}

// Item is a single feed entry. ID is provided by the feed and is the only
// identity used for de-duplication. IsRead is local state and is never taken
// from the remote feed.
type Item struct {
	ID          string
	Title       string
	Summary     string
	Link        string
	PublishedAt time.Time
	IsRead      bool
	FetchedAt   time.Time
}
