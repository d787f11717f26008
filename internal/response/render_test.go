package response

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/tlee933/rai/internal/mcppool"
)

func blocksFromJSON(t *testing.T, data string) []mcppool.ContentBlock {
	t.Helper()
	var blocks []mcppool.ContentBlock
	if err := json.Unmarshal([]byte(data), &blocks); err != nil {
		t.Fatalf("decoding content: %v", err)
	}
	return blocks
}

func TestTextJoinsTextBlocksWithNewlines(t *testing.T) {
	got := Text([]mcppool.ContentBlock{mcppool.TextBlock("alpha"), mcppool.TextBlock("beta")})
	if got != "alpha\nbeta" {
		t.Fatalf("Text() = %q, want %q", got, "alpha\nbeta")
	}
}

func TestTextEmptyContent(t *testing.T) {
	if got := Text(nil); got != "" {
		t.Fatalf("Text(nil) = %q, want empty", got)
	}
}

func TestTextImageBlockWritesTempFileAndPrintsPath(t *testing.T) {
	payload := []byte("image-bytes")
	blocks := blocksFromJSON(t, `[{"type":"image","mimeType":"application/octet-stream","data":"`+
		base64.StdEncoding.EncodeToString(payload)+`"}]`)

	path := strings.TrimSpace(Text(blocks))
	if path == "" {
		t.Fatalf("Text() path is empty")
	}
	defer os.Remove(path) //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading emitted file: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("file content = %q, want %q", string(data), string(payload))
	}
}

func TestTextResourceBlockWritesTempFile(t *testing.T) {
	blocks := blocksFromJSON(t, `[{"type":"resource","resource":{"uri":"file:///x","mimeType":"text/plain","text":"hello"}}]`)

	path := Text(blocks)
	defer os.Remove(path) //nolint:errcheck

	if !strings.HasSuffix(path, ".txt") {
		t.Fatalf("Text() path = %q, want .txt suffix", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading emitted file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("file content = %q, want %q", string(data), "hello")
	}
}

func TestTextUnknownBlockFallsBackToJSON(t *testing.T) {
	blocks := blocksFromJSON(t, `[{"type":"text","text":"before"},{"type":"resource_link","uri":"file:///y"}]`)

	got := Text(blocks)
	want := "before\n" + `{"type":"resource_link","uri":"file:///y"}`
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestTitled(t *testing.T) {
	tests := []struct {
		title, body, want string
	}{
		{"GPU Stats", "card0 42C\n", "GPU Stats\ncard0 42C"},
		{"GPU Stats", "  \n", "GPU Stats\n(no output)"},
		{"", "plain", "plain"},
	}
	for _, tt := range tests {
		if got := Titled(tt.title, tt.body); got != tt.want {
			t.Fatalf("Titled(%q, %q) = %q, want %q", tt.title, tt.body, got, tt.want)
		}
	}
}

func TestEnsureTrailingNewline(t *testing.T) {
	if got := EnsureTrailingNewline("x"); got != "x\n" {
		t.Fatalf("EnsureTrailingNewline(x) = %q", got)
	}
	if got := EnsureTrailingNewline("x\n"); got != "x\n" {
		t.Fatalf("EnsureTrailingNewline(x\\n) = %q", got)
	}
	if got := EnsureTrailingNewline(""); got != "" {
		t.Fatalf("EnsureTrailingNewline(\"\") = %q", got)
	}
}

func TestExtension(t *testing.T) {
	for mimeType, want := range map[string]string{
		"text/plain; charset=utf-8":   ".txt",
		"IMAGE/PNG":                   ".png",
		"application/vnd.x-rai+json":  ".json",
		"text/x-rai-log":              ".txt",
		"":                            ".bin",
		"application/x-rai-unknown-1": ".bin",
	} {
		if got := extension(mimeType); got != want {
			t.Errorf("extension(%q) = %q, want %q", mimeType, got, want)
		}
	}
}
