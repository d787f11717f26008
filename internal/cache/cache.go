// Package cache keeps successful tool results on disk for a bounded time.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tlee933/rai/internal/mcppool"
	"github.com/tlee933/rai/internal/paths"
)

// record is the on-disk form of one entry.
type record struct {
	Content []mcppool.ContentBlock `json:"content"`
	Created time.Time              `json:"created"`
	Expires time.Time              `json:"expires"`
}

// Hit is a live cache entry.
type Hit struct {
	Content []mcppool.ContentBlock
	Age     time.Duration
	TTL     time.Duration
}

// Store is a directory of cached tool results, one JSON file per
// (server, tool, arguments) key.
type Store struct {
	dir string
	now func() time.Time
}

// New returns a store rooted at dir. The directory is created on first Put.
func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Default returns the store under the user cache directory.
func Default() *Store {
	return New(paths.ResultCacheDir())
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Lookup returns the entry for the key if it has not expired. Expired and
// undecodable files are deleted on the way out.
func (s *Store) Lookup(server, tool string, args map[string]any) (Hit, bool) {
	path, err := s.entryPath(server, tool, args)
	if err != nil {
		return Hit{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Hit{}, false
	}

	var rec record
	now := s.now()
	if json.Unmarshal(data, &rec) != nil || !now.Before(rec.Expires) {
		_ = os.Remove(path)
		return Hit{}, false
	}

	created := rec.Created
	if created.IsZero() || created.After(now) {
		created = now
	}
	return Hit{
		Content: rec.Content,
		Age:     now.Sub(created),
		TTL:     max(rec.Expires.Sub(created), 0),
	}, true
}

// Put stores content for ttl. A non-positive ttl writes an entry that is
// already expired.
func (s *Store) Put(server, tool string, args map[string]any, content []mcppool.ContentBlock, ttl time.Duration) error {
	path, err := s.entryPath(server, tool, args)
	if err != nil {
		return err
	}
	now := s.now()
	data, err := json.Marshal(record{Content: content, Created: now, Expires: now.Add(ttl)})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if errors.Is(err, fs.ErrNotExist) {
		if err = paths.EnsureDir(s.dir); err == nil {
			err = os.WriteFile(path, data, 0o600)
		}
	}
	return err
}

// entryPath hashes the key. encoding/json writes map keys sorted, so equal
// argument maps hash equally.
func (s *Store) entryPath(server, tool string, args map[string]any) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding cache key: %w", err)
	}
	sum := sha256.Sum256([]byte(server + "\x00" + tool + "\x00" + string(encoded)))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json"), nil
}
