// Package catalog turns a catalog reference chosen by the customer into image
// bytes the dispatcher can forward to the operator chat.
//
// A reference is either an absolute http(s) URL or a path relative to the
// local catalog directory (the storefront's static "public" tree).
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the reference does not point at an existing image.
	ErrNotFound = errors.New("catalog image not found")
	// ErrTooLarge indicates the image exceeds the configured size cap.
	ErrTooLarge = errors.New("catalog image too large")
)

// Image is a resolved catalog asset.
type Image struct {
	Data     []byte
	Filename string
	Source   string
}

// Options configures a Resolver.
type Options struct {
	Dir          string
	FetchTimeout time.Duration
	MaxBytes     int64
	// AllowedHosts limits remote references to these host names. When empty,
	// loopback, private and link-local addresses are refused.
	AllowedHosts []string
	// HTTPClient overrides the fetch client. The host check still runs before
	// each request, but redirects and dial addresses are left to the client.
	HTTPClient *http.Client
}

// Resolver loads catalog images from disk or over HTTP.
type Resolver struct {
	dir      string
	http     *http.Client
	timeout  time.Duration
	maxBytes int64
	hosts    hostPolicy
}

// NewResolver constructs a resolver.
func NewResolver(opts Options) *Resolver {
	hosts := newHostPolicy(opts.AllowedHosts)
	client := opts.HTTPClient
	if client == nil {
		client = hosts.newGuardedClient()
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Resolver{dir: opts.Dir, http: client, timeout: timeout, maxBytes: maxBytes, hosts: hosts}
}

// Resolve loads the image referenced by ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Image{}, fmt.Errorf("empty reference: %w", ErrNotFound)
	}
	if IsRemote(ref) {
		return r.fetch(ctx, ref)
	}
	return r.open(ref)
}

// IsRemote reports whether ref is an absolute http(s) URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (r *Resolver) fetch(ctx context.Context, ref string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return Image{}, fmt.Errorf("build catalog request: %w", err)
	}
	if err := r.hosts.check(ctx, req.URL); err != nil {
		return Image{}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch catalog image: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Image{}, fmt.Errorf("fetch %s: http %d: %w", ref, resp.StatusCode, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Image{}, fmt.Errorf("fetch %s: http %d", ref, resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return Image{}, fmt.Errorf("fetch %s: %d bytes: %w", ref, resp.ContentLength, ErrTooLarge)
	}

	data, err := readCapped(resp.Body, r.maxBytes)
	if err != nil {
		return Image{}, fmt.Errorf("fetch %s: %w", ref, err)
	}

	return Image{Data: data, Filename: baseName(req.URL.Path), Source: ref}, nil
}

func (r *Resolver) open(ref string) (Image, error) {
	if strings.TrimSpace(r.dir) == "" {
		return Image{}, fmt.Errorf("no catalog directory configured for %q: %w", ref, ErrNotFound)
	}
	clean := path.Clean("/" + strings.ReplaceAll(ref, "\\", "/"))
	full := filepath.Join(r.dir, filepath.FromSlash(clean))
	root, err := filepath.Abs(r.dir)
	if err != nil {
		return Image{}, fmt.Errorf("catalog dir: %w", err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return Image{}, fmt.Errorf("catalog path: %w", err)
	}
	if rel, err := filepath.Rel(root, abs); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Image{}, fmt.Errorf("reference %q escapes catalog dir: %w", ref, ErrNotFound)
	}

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Image{}, fmt.Errorf("open %s: %w", ref, ErrNotFound)
		}
		return Image{}, fmt.Errorf("open %s: %w", ref, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Image{}, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		return Image{}, fmt.Errorf("%s is a directory: %w", ref, ErrNotFound)
	}
	if info.Size() > r.maxBytes {
		return Image{}, fmt.Errorf("%s: %d bytes: %w", ref, info.Size(), ErrTooLarge)
	}
	data, err := readCapped(f, r.maxBytes)
	if err != nil {
		return Image{}, fmt.Errorf("read %s: %w", ref, err)
	}
	return Image{Data: data, Filename: filepath.Base(abs), Source: abs}, nil
}

func readCapped(rd io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body: %w", ErrNotFound)
	}
	return data, nil
}

func baseName(p string) string {
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "catalog.jpg"
	}
	return name
}
