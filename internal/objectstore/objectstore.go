// Package objectstore provides the staging area workers write batch
// output to and the Export Cache writes deduplicated dependency exports
// to. The core never talks to a real bucket directly (spec §1: the
// worker runtime is an opaque RPC) - this is a local-filesystem-backed
// stand-in that honors the same path layout GCS would (spec §6). Keys are
// addressed through "gs://bucket/key" URIs, and the references built over
// it carry ExportType "object-store".
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is a bucket-scoped, path-partitioned blob store.
type Store struct {
	mu     sync.Mutex
	root   string
	bucket string
}

// New creates a Store rooted at root/bucket. root is created if missing.
func New(root, bucket string) (*Store, error) {
	base := filepath.Join(root, bucket)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root %s: %w", base, err)
	}
	return &Store{root: root, bucket: bucket}, nil
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Put writes data at bucket-relative key, creating parent directories.
func (s *Store) Put(key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := filepath.Join(s.root, s.bucket, key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: mkdir for %s: %w", key, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	return s.URI(key), nil
}

// List returns bucket-relative keys matching a "*" wildcard pattern
// (spec §3: "the locator resolves without ambiguity to the full
// dataset"). Only a single trailing "*" segment is supported, matching
// the "<prefix>/*.parquet" shape the service ever produces.
func (s *Store) List(pattern string) ([]string, error) {
	dir := filepath.Dir(strings.TrimSuffix(pattern, "*"))
	namePattern := filepath.Base(pattern)
	base := filepath.Join(s.root, s.bucket, dir)

	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: list %s: %w", pattern, err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(namePattern, e.Name()); !ok {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Get reads the bytes at a bucket-relative key.
func (s *Store) Get(key string) ([]byte, error) {
	full := filepath.Join(s.root, s.bucket, key)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	return data, nil
}

// URI returns the bucket-qualified URI for a key, in "gs://bucket/key" shape.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

// KeyFromURI strips the "gs://bucket/" prefix back off, the inverse of URI.
func (s *Store) KeyFromURI(uri string) string {
	prefix := fmt.Sprintf("gs://%s/", s.bucket)
	return strings.TrimPrefix(uri, prefix)
}
