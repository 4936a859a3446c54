// Package transfer downloads page assets over plain HTTP. The browser
// renders the page; images and linked documents are cheaper to pull
// directly once their URLs are known.
package transfer

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"faqharvest/internal/faults"
)

const (
	// minDimension rejects tracking pixels and spacer images.
	minDimension = 10
	// maxAssetSize bounds a single download.
	maxAssetSize = 25 << 20
)

// Asset is a downloaded file ready to persist.
type Asset struct {
	Name        string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Client wraps an HTTP client with the validation rules for page assets.
type Client struct {
	http      *http.Client
	userAgent string
	referer   string
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the UA sent on asset requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithReferer sets the referer; some CDNs refuse bare requests.
func WithReferer(ref string) Option {
	return func(c *Client) { c.referer = ref }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a Client with a 30s request timeout.
func New(opts ...Option) *Client {
	c := &Client{http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchImage downloads one image, verifies it decodes, and rejects
// anything smaller than 10px on either side. The returned asset name
// is an md5 of the source URL plus the original extension, so repeat
// runs overwrite instead of duplicating.
func (c *Client) FetchImage(ctx context.Context, rawURL string) (*Asset, error) {
	data, contentType, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		return nil, fmt.Errorf("%s: unexpected content type %q: %w", rawURL, contentType, faults.ErrNotFound)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: undecodable image: %w", rawURL, err)
	}
	if cfg.Width < minDimension || cfg.Height < minDimension {
		return nil, fmt.Errorf("%s: image %dx%d below minimum: %w", rawURL, cfg.Width, cfg.Height, faults.ErrNotFound)
	}

	return &Asset{
		Name:        hashName(rawURL, format),
		ContentType: contentType,
		Data:        data,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// FetchDocument downloads a linked document (PDF and friends) without
// image validation.
func (c *Client) FetchDocument(ctx context.Context, rawURL string) (*Asset, error) {
	data, contentType, err := c.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	name := path.Base(urlPath(rawURL))
	if name == "" || name == "." || name == "/" {
		name = hashName(rawURL, "bin")
	}
	return &Asset{Name: name, ContentType: contentType, Data: data}, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if len(data) > maxAssetSize {
		return nil, "", fmt.Errorf("fetch %s: asset exceeds %d bytes", rawURL, maxAssetSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}

func hashName(rawURL, ext string) string {
	sum := md5.Sum([]byte(rawURL))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%x.%s", sum, ext)
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
