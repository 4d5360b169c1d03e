package crosspost

import (
	"context"
	"errors"
	"fmt"

	"github.com/blacktop/crosspost/internal/logutil"
)

// SkipReason explains why a trigger did not reach the remote network.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipNotConfigured SkipReason = "credentials not configured"
	SkipUpdate        SkipReason = "post update"
	SkipNotRequested  SkipReason = "cross-post not requested"
	SkipNotPublished  SkipReason = "post not published"
	SkipAlreadyPosted SkipReason = "already cross-posted"
)

// Outcome describes what a trigger did.
type Outcome struct {
	// URL is the cross-post URL, either freshly created or previously stored.
	URL     string
	Posted  bool
	Skipped SkipReason
}

// Dispatcher funnels the publish-time and manual triggers into one remote call.
type Dispatcher struct {
	store  Store
	poster Poster
}

// NewDispatcher wires a dispatcher to its store and poster.
func NewDispatcher(store Store, poster Poster) *Dispatcher {
	return &Dispatcher{store: store, poster: poster}
}

// ShouldCrossPost reports whether the operator opted in, the post is
// published, and the post has not been cross-posted yet.
func ShouldCrossPost(post Post, flags Flags) bool {
	return flags.Crosspost && post.Status == StatusPublish && !post.Posted()
}

// AttemptCrossPost sends post to the remote network exactly once.
func (d *Dispatcher) AttemptCrossPost(ctx context.Context, post Post, cfg Config) (Result, error) {
	if !cfg.HasCredentials() {
		return Result{}, missingCredentials(d.poster.Name(), cfg)
	}

	req := BuildRequest(post, cfg)
	logutil.Debugf("cross-posting: post_id=%d provider=%s image=%t", post.ID, d.poster.Name(), req.ImageURL != "")

	res, err := d.poster.Post(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if res.URL == "" {
		return Result{}, &ProtocolError{Provider: d.poster.Name(), Reason: "response missing url"}
	}
	return res, nil
}

// HandlePublish runs the publish-time trigger for a freshly saved post.
func (d *Dispatcher) HandlePublish(ctx context.Context, post Post, flags Flags) (Outcome, error) {
	if flags.Update {
		return Outcome{Skipped: SkipUpdate}, nil
	}
	if !flags.Crosspost {
		return Outcome{Skipped: SkipNotRequested}, nil
	}

	cfg, err := d.store.LoadConfig(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load config: %w", err)
	}
	if !cfg.HasCredentials() {
		logutil.Debugf("publish trigger skipped: post_id=%d reason=%q", post.ID, SkipNotConfigured)
		return Outcome{Skipped: SkipNotConfigured}, nil
	}

	if post.Posted() {
		return Outcome{URL: post.CrosspostURL, Skipped: SkipAlreadyPosted}, nil
	}
	if !ShouldCrossPost(post, flags) {
		return Outcome{Skipped: SkipNotPublished}, nil
	}

	return d.dispatch(ctx, post, cfg)
}

// ManualPost runs the operator-initiated trigger for the post with id.
func (d *Dispatcher) ManualPost(ctx context.Context, id int64) (Outcome, error) {
	post, err := d.store.GetPost(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if post.Posted() {
		return Outcome{URL: post.CrosspostURL, Skipped: SkipAlreadyPosted}, nil
	}

	cfg, err := d.store.LoadConfig(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("load config: %w", err)
	}

	return d.dispatch(ctx, post, cfg)
}

func (d *Dispatcher) dispatch(ctx context.Context, post Post, cfg Config) (Outcome, error) {
	res, err := d.AttemptCrossPost(ctx, post, cfg)
	if err != nil {
		logutil.Errorf("cross-post failed: post_id=%d err=%v", post.ID, err)
		return Outcome{}, err
	}

	if err := d.store.SetCrosspostURL(ctx, post.ID, res.URL); err != nil {
		if errors.Is(err, ErrAlreadyPosted) {
			logutil.Warnf("post %d was cross-posted concurrently; %s is orphaned", post.ID, res.URL)
		}
		return Outcome{URL: res.URL, Posted: true}, fmt.Errorf("record crosspost url: %w", err)
	}

	logutil.Infof("cross-posted: post_id=%d url=%s", post.ID, res.URL)
	return Outcome{URL: res.URL, Posted: true}, nil
}

func missingCredentials(provider string, cfg Config) error {
	creds := cfg.Credentials()
	var missing []string
	if creds.ProfileID == "" {
		missing = append(missing, "profile_id")
	}
	if creds.AppPassword == "" {
		missing = append(missing, "app_password")
	}
	return MissingCredentialsError{Provider: provider, Fields: missing}
}
