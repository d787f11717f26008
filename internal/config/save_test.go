package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveToWritesConfigAndCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.LLM.URL = "http://127.0.0.1:9090/v1/chat/completions"

	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("config mode = %v, want 0600", got)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.LLM.URL != cfg.LLM.URL {
		t.Fatalf("llm.url = %q, want %q", loaded.LLM.URL, cfg.LLM.URL)
	}
	if len(loaded.Servers) != len(cfg.Servers) {
		t.Fatalf("servers len = %d, want %d", len(loaded.Servers), len(cfg.Servers))
	}
	for i := range cfg.Servers {
		if loaded.Servers[i].Name != cfg.Servers[i].Name {
			t.Fatalf("servers[%d].name = %q, want %q", i, loaded.Servers[i].Name, cfg.Servers[i].Name)
		}
	}
}

func TestSaveToKeepsEnvPlaceholders(t *testing.T) {
	t.Setenv("HOME", "/tmp/rai-home")
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := SaveTo(path, Default()); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "${HOME}/.local/bin/linux-mcp-server") {
		t.Fatalf("saved config does not keep ${HOME} placeholder:\n%s", data)
	}
}

func TestSaveToReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("garbage = ["), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := SaveTo(path, nil); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# rai configuration.") {
		t.Fatalf("saved config starts with %q", strings.SplitN(string(data), "\n", 2)[0])
	}
	if _, err := Parse(data); err != nil {
		t.Fatalf("Parse(saved) error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory holds %d entries, want only config.toml", len(entries))
	}
}
