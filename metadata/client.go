package metadata

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DefaultUserAgent    = "thumbcache/1.0 (+https://github.com/briangreenhill/thumbcache)"
	DefaultMaxBodyBytes = 2 << 20
)

// Client fetches page metadata over HTTP
type Client struct {
	http            *http.Client
	userAgent       string
	maxBodyBytes    int64
	faviconFallback bool
	log             zerolog.Logger
}

var _ Provider = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithFaviconFallback controls whether /favicon.ico is offered when a page declares no icon
func WithFaviconFallback(enabled bool) Option {
	return func(c *Client) { c.faviconFallback = enabled }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		http:            http.DefaultClient,
		userAgent:       DefaultUserAgent,
		maxBodyBytes:    DefaultMaxBodyBytes,
		faviconFallback: true,
		log:             zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchMetadata loads u and extracts its title, icon and preview image.
func (c *Client) FetchMetadata(ctx context.Context, u *url.URL) (*Metadata, error) {
	if u == nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, u)
	}

	resp, err := c.get(ctx, u.String(), "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: %s: %s", u, resp.Status, strings.TrimSpace(string(b)))
	}

	final := resp.Request.URL
	md := &Metadata{OriginalURL: u, URL: final}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		// the URL is the preview itself
		md.ImageProvider = c.resource(final)
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		doc, err := parseDocument(io.LimitReader(resp.Body, c.maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", final, err)
		}
		c.apply(md, doc)
	default:
		c.log.Debug().Str("url", final.String()).Str("content_type", mediaType).Msg("not an html page")
	}

	if md.IconProvider == nil && c.faviconFallback {
		md.IconProvider = c.resource(final.ResolveReference(&url.URL{Path: "/favicon.ico"}))
	}
	return md, nil
}

// apply resolves the parsed hints against the page URL
func (c *Client) apply(md *Metadata, doc *document) {
	base := md.URL
	if doc.base != "" {
		if b, err := base.Parse(doc.base); err == nil {
			base = b
		}
	}

	md.Title = doc.title
	if doc.ogTitle != "" {
		md.Title = doc.ogTitle
	}

	if icon, ok := doc.bestIcon(); ok {
		if ref, err := base.Parse(icon.href); err == nil {
			md.IconProvider = c.resource(ref)
		}
	}
	for _, img := range doc.images {
		if ref, err := base.Parse(img); err == nil {
			md.ImageProvider = c.resource(ref)
			break
		}
	}
}

func (c *Client) resource(u *url.URL) *RemoteResource {
	return &RemoteResource{URL: u, client: c}
}

func (c *Client) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	return c.http.Do(req)
}
