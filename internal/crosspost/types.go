package crosspost

import (
	"context"
	"strings"
)

// StatusPublish is the post status that makes a post eligible for cross-posting.
const StatusPublish = "publish"

// Config is the operator-managed settings record read on every attempt.
type Config struct {
	ProfileID               string
	AppPassword             string
	DisableScheduledPosting bool
}

// HasCredentials reports whether both the profile ID and app password are set.
func (c Config) HasCredentials() bool {
	return strings.TrimSpace(c.ProfileID) != "" && strings.TrimSpace(c.AppPassword) != ""
}

// Credentials returns the authentication pair carried by a Request.
func (c Config) Credentials() Credentials {
	return Credentials{
		ProfileID:   strings.TrimSpace(c.ProfileID),
		AppPassword: strings.TrimSpace(c.AppPassword),
	}
}

// Post is a published article as known to the host CMS.
// CrosspostURL is empty until the post has been cross-posted.
type Post struct {
	ID               int64
	AuthorID         string
	Title            string
	Excerpt          string
	Content          string
	Tags             []string
	FeaturedImageURL string
	Status           string
	CrosspostURL     string
}

// Posted reports whether the idempotency marker is set.
func (p Post) Posted() bool { return p.CrosspostURL != "" }

// Credentials authenticates a Request against the remote network.
type Credentials struct {
	ProfileID   string
	AppPassword string
}

// Request is the payload handed to a Poster. It is never persisted.
type Request struct {
	Content     string
	ImageURL    string
	Credentials Credentials
}

// Result is the canonical URL of the published copy.
type Result struct {
	URL string
}

// Flags carries the operator's choices submitted alongside a post save.
type Flags struct {
	// Crosspost is the meta box checkbox.
	Crosspost bool
	// Update is set when the save modified an already existing post.
	Update bool
}

// Poster abstracts the remote network that receives the cross-post.
type Poster interface {
	Name() string
	Post(ctx context.Context, req Request) (Result, error)
}

// Store persists the settings record and the per-post idempotency marker.
type Store interface {
	LoadConfig(ctx context.Context) (Config, error)
	GetPost(ctx context.Context, id int64) (Post, error)
	SetCrosspostURL(ctx context.Context, id int64, url string) error
}
