package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tryonrelay/internal/catalog"
)

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "images"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "images", "anillo1.jpg"), []byte("ring"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func TestResolveLocalFile(t *testing.T) {
	r := catalog.NewResolver(catalog.Options{Dir: writeCatalog(t)})
	for _, ref := range []string{"images/anillo1.jpg", "/images/anillo1.jpg", "images\\anillo1.jpg"} {
		img, err := r.Resolve(context.Background(), ref)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", ref, err)
		}
		if string(img.Data) != "ring" || img.Filename != "anillo1.jpg" {
			t.Fatalf("Resolve(%q) = %+v", ref, img)
		}
	}
}

func TestResolveLocalMissing(t *testing.T) {
	r := catalog.NewResolver(catalog.Options{Dir: writeCatalog(t)})
	_, err := r.Resolve(context.Background(), "images/nope.jpg")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "public")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := catalog.NewResolver(catalog.Options{Dir: dir})
	for _, ref := range []string{"../secret.txt", "images/../../secret.txt", "."} {
		if _, err := r.Resolve(context.Background(), ref); !errors.Is(err, catalog.ErrNotFound) {
			t.Fatalf("Resolve(%q) expected ErrNotFound, got %v", ref, err)
		}
	}
}

func TestResolveLocalTooLarge(t *testing.T) {
	dir := writeCatalog(t)
	if err := os.WriteFile(filepath.Join(dir, "big.jpg"), []byte(strings.Repeat("x", 64)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := catalog.NewResolver(catalog.Options{Dir: dir, MaxBytes: 16})
	if _, err := r.Resolve(context.Background(), "big.jpg"); !errors.Is(err, catalog.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestResolveRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/joyas/collar.png":
			_, _ = w.Write([]byte("png"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := catalog.NewResolver(catalog.Options{HTTPClient: srv.Client(), AllowedHosts: []string{"127.0.0.1"}})
	img, err := r.Resolve(context.Background(), srv.URL+"/joyas/collar.png")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if string(img.Data) != "png" || img.Filename != "collar.png" {
		t.Fatalf("unexpected image %+v", img)
	}

	if _, err := r.Resolve(context.Background(), srv.URL+"/joyas/none.png"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveRemoteTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	r := catalog.NewResolver(catalog.Options{HTTPClient: srv.Client(), AllowedHosts: []string{"127.0.0.1"}, MaxBytes: 10})
	if _, err := r.Resolve(context.Background(), srv.URL+"/big.jpg"); !errors.Is(err, catalog.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestResolveRemoteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := catalog.NewResolver(catalog.Options{HTTPClient: srv.Client(), AllowedHosts: []string{"127.0.0.1"}, FetchTimeout: 20 * time.Millisecond})
	if _, err := r.Resolve(context.Background(), srv.URL+"/slow.jpg"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestResolveRemoteRefusesForbiddenHosts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts catalog.Options
		ref  string
	}{
		{"loopback test server", catalog.Options{HTTPClient: srv.Client()}, srv.URL + "/a.png"},
		{"host outside allowlist", catalog.Options{HTTPClient: srv.Client(), AllowedHosts: []string{"cdn.example.com"}}, srv.URL + "/a.png"},
		{"private range", catalog.Options{}, "http://10.0.0.5/a.png"},
		{"ipv6 loopback", catalog.Options{}, "http://[::1]:8080/a.png"},
		{"metadata endpoint", catalog.Options{}, "http://169.254.169.254/latest/meta-data"},
		{"unspecified", catalog.Options{}, "http://0.0.0.0/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := catalog.NewResolver(tt.opts)
			if _, err := r.Resolve(context.Background(), tt.ref); !errors.Is(err, catalog.ErrForbiddenHost) {
				t.Fatalf("expected ErrForbiddenHost, got %v", err)
			}
		})
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("refused fetches reached the server %d times", n)
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://cdn.example.com/a.jpg": true,
		"http://localhost:8080/a.jpg":   true,
		"images/a.jpg":                  false,
		"file:///etc/passwd":            false,
		"https:///nohost":               false,
	}
	for ref, want := range tests {
		if got := catalog.IsRemote(ref); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", ref, got, want)
		}
	}
}
