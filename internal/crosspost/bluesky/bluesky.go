package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/rivo/uniseg"
)

const (
	providerName = "bluesky"

	// DefaultPDSURL is the entryway used when no PDS is configured.
	DefaultPDSURL = "https://bsky.social"
	// DefaultAppViewURL is where post permalinks are rooted.
	DefaultAppViewURL = "https://bsky.app"

	defaultTimeout = 30 * time.Second
	maxPostText    = 300
	maxBlobBytes   = 1_000_000
	postCollection = "app.bsky.feed.post"
	userAgent      = "crosspost/1"
)

// Config allows the caller to tune the client.
type Config struct {
	PDSURL     string
	AppViewURL string
	Timeout    time.Duration
}

// Client implements crosspost.Poster over the AT Protocol.
type Client struct {
	pdsURL     string
	appViewURL string
	httpClient *http.Client
}

var _ crosspost.Poster = (*Client)(nil)

// New constructs a Bluesky poster. Credentials arrive with each request.
func New(cfg Config) *Client {
	pds := strings.TrimRight(strings.TrimSpace(cfg.PDSURL), "/")
	if pds == "" {
		pds = DefaultPDSURL
	}
	appView := strings.TrimRight(strings.TrimSpace(cfg.AppViewURL), "/")
	if appView == "" {
		appView = DefaultAppViewURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		pdsURL:     pds,
		appViewURL: appView,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post logs in with the request credentials and publishes a feed post with
// an optional image embed.
func (c *Client) Post(ctx context.Context, req crosspost.Request) (crosspost.Result, error) {
	client, err := c.login(ctx, req.Credentials)
	if err != nil {
		return crosspost.Result{}, err
	}

	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      truncateGraphemes(req.Content, maxPostText),
	}

	if req.ImageURL != "" {
		blob, err := c.uploadImage(ctx, client, req.ImageURL)
		if err != nil {
			logutil.Warnf("posting without image: %v", err)
		} else {
			post.Embed = &bsky.FeedPost_Embed{
				EmbedImages: &bsky.EmbedImages{
					Images: []*bsky.EmbedImages_Image{
						{
							Alt:   altText(req.Content),
							Image: blob,
						},
					},
				},
			}
		}
	}

	out, err := atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return crosspost.Result{}, &crosspost.RemoteError{Provider: providerName, Op: "create record", Err: err}
	}

	link, err := c.permalink(out.Uri, client.Auth.Handle)
	if err != nil {
		return crosspost.Result{}, err
	}
	return crosspost.Result{URL: link}, nil
}

func (c *Client) login(ctx context.Context, creds crosspost.Credentials) (*xrpc.Client, error) {
	if creds.ProfileID == "" || creds.AppPassword == "" {
		return nil, crosspost.ValidationError{Provider: providerName, Reason: "profile id and app password are required"}
	}

	ua := userAgent
	client := &xrpc.Client{
		Client:    c.httpClient,
		Host:      c.pdsURL,
		UserAgent: &ua,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: creds.ProfileID,
		Password:   creds.AppPassword,
	})
	if err != nil {
		return nil, &crosspost.RemoteError{Provider: providerName, Op: "login", Err: err}
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	logutil.Debugf("bluesky session created: did=%s", session.Did)

	return client, nil
}

func (c *Client) uploadImage(ctx context.Context, client *xrpc.Client, imageURL string) (*util.LexBlob, error) {
	data, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	resp, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}

	return resp.Blob, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, crosspost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q is not an http(s) URL", imageURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return nil, crosspost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q has content type %q", imageURL, resp.Header.Get("Content-Type"))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxBlobBytes {
		return nil, crosspost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q exceeds %d bytes", imageURL, maxBlobBytes)}
	}

	return data, nil
}

// permalink converts an at:// record URI into a web URL on the app view.
func (c *Client) permalink(uri, handle string) (string, error) {
	if uri == "" {
		return "", &crosspost.ProtocolError{Provider: providerName, Reason: "create record returned no uri"}
	}

	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return "", &crosspost.ProtocolError{Provider: providerName, Reason: fmt.Sprintf("invalid record uri %q", uri)}
	}

	rkey := aturi.RecordKey().String()
	if rkey == "" {
		return "", &crosspost.ProtocolError{Provider: providerName, Reason: fmt.Sprintf("record uri %q has no record key", uri)}
	}

	profile := handle
	if profile == "" || profile == "handle.invalid" {
		profile = aturi.Authority().String()
	}

	return fmt.Sprintf("%s/profile/%s/post/%s", c.appViewURL, profile, rkey), nil
}

func truncateGraphemes(text string, limit int) string {
	if uniseg.GraphemeClusterCount(text) <= limit {
		return text
	}

	var b strings.Builder
	gr := uniseg.NewGraphemes(text)
	for n := 0; n < limit-1 && gr.Next(); n++ {
		b.WriteString(gr.Str())
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace) + "…"
}

func altText(content string) string {
	first, _, _ := strings.Cut(content, "\n")
	return truncateGraphemes(strings.TrimSpace(first), 100)
}
