package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tlee933/rai/internal/mcppool"
)

var statsArgs = map[string]any{"device": "0"}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "results"))

	content := []mcppool.ContentBlock{mcppool.TextBlock("GPU[0] 42.0c")}
	if err := s.Put("rocm", "get_gpu_stats", statsArgs, content, 30*time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	hit, ok := s.Lookup("rocm", "get_gpu_stats", statsArgs)
	if !ok {
		t.Fatal("Lookup() cache miss, want hit")
	}
	if diff := cmp.Diff(content, hit.Content); diff != "" {
		t.Fatalf("Lookup() content mismatch (-want +got):\n%s", diff)
	}

	path, err := s.entryPath("rocm", "get_gpu_stats", statsArgs)
	if err != nil {
		t.Fatalf("entryPath() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat cache file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Fatalf("cache file mode = %o, want 600", got)
	}
}

func TestGetExpiredEntryRemovesFile(t *testing.T) {
	s := New(t.TempDir())

	if err := s.Put("rocm", "get_gpu_stats", statsArgs, []mcppool.ContentBlock{mcppool.TextBlock("stale")}, -1*time.Second); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	path, _ := s.entryPath("rocm", "get_gpu_stats", statsArgs)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file before read, stat error: %v", err)
	}

	if _, ok := s.Lookup("rocm", "get_gpu_stats", statsArgs); ok {
		t.Fatal("Lookup() hit = true, want false for expired entry")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected expired cache file to be removed, stat error = %v", err)
	}
}

func TestGetCorruptEntryRemovesFile(t *testing.T) {
	s := New(t.TempDir())

	path, _ := s.entryPath("rocm", "get_gpu_stats", statsArgs)
	if err := os.WriteFile(path, []byte("{not-json"), 0600); err != nil {
		t.Fatalf("write corrupt cache file: %v", err)
	}

	if _, ok := s.Lookup("rocm", "get_gpu_stats", statsArgs); ok {
		t.Fatal("Lookup() hit = true, want false for corrupt entry")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected corrupt cache file to be removed, stat error = %v", err)
	}
}

func TestEntryPathStableAndScoped(t *testing.T) {
	s := New(t.TempDir())

	a, _ := s.entryPath("rocm", "get_gpu_stats", map[string]any{"a": 1, "b": "x"})
	b, _ := s.entryPath("rocm", "get_gpu_stats", map[string]any{"b": "x", "a": 1})
	c, _ := s.entryPath("rocm", "get_vram", map[string]any{"a": 1, "b": "x"})
	d, _ := s.entryPath("other", "get_gpu_stats", map[string]any{"a": 1, "b": "x"})

	if a != b {
		t.Fatalf("entryPath() not stable: %q != %q", a, b)
	}
	if a == c {
		t.Fatalf("entryPath() should differ per tool, got %q", a)
	}
	if a == d {
		t.Fatalf("entryPath() should differ per server, got %q", a)
	}
}

func TestEntryPathRejectsUnencodableArgs(t *testing.T) {
	s := New(t.TempDir())

	if _, err := s.entryPath("rocm", "get_gpu_stats", map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("entryPath() error = nil, want encoding error")
	}
	if _, ok := s.Lookup("rocm", "get_gpu_stats", map[string]any{"ch": make(chan int)}); ok {
		t.Fatal("Lookup() hit = true for unencodable args")
	}
}

func TestLookupReportsAgeAndTTL(t *testing.T) {
	s := New(t.TempDir())
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }

	if err := s.Put("rocm", "get_gpu_stats", statsArgs, []mcppool.ContentBlock{mcppool.TextBlock("ok")}, 2*time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	s.now = func() time.Time { return start.Add(30 * time.Second) }
	hit, ok := s.Lookup("rocm", "get_gpu_stats", statsArgs)
	if !ok {
		t.Fatal("Lookup() cache miss, want hit")
	}
	if hit.Age != 30*time.Second || hit.TTL != 2*time.Minute {
		t.Fatalf("Lookup() age/ttl = %s/%s, want 30s/2m0s", hit.Age, hit.TTL)
	}

	s.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, ok := s.Lookup("rocm", "get_gpu_stats", statsArgs); ok {
		t.Fatal("Lookup() hit at expiry instant, want miss")
	}
}

func TestLookupMiss(t *testing.T) {
	s := New(t.TempDir())

	hit, ok := s.Lookup("rocm", "get_gpu_stats", statsArgs)
	if ok {
		t.Fatalf("Lookup() ok = %v, want false", ok)
	}
	if hit.Content != nil || hit.Age != 0 || hit.TTL != 0 {
		t.Fatalf("Lookup() = %+v, want zero Hit", hit)
	}
}

func TestDefaultUsesResultCacheDir(t *testing.T) {
	cacheHome := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheHome)

	want := filepath.Join(cacheHome, "rai", "results")
	if got := Default().Dir(); got != want {
		t.Fatalf("Default().Dir() = %q, want %q", got, want)
	}
}
