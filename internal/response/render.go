// Package response turns tool call content into printable text.
package response

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"os"
	"strings"

	"github.com/tlee933/rai/internal/mcppool"
)

// Text flattens content blocks into one newline-separated string. Text
// blocks are emitted as is. Binary and embedded resource blocks are spilled
// to a temp file and replaced by its path. Anything else prints as JSON.
func Text(blocks []mcppool.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		line, ok := render(block)
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

// Titled renders body under a title line. An empty body reads "(no output)".
func Titled(title, body string) string {
	body = strings.TrimRight(body, "\n")
	if strings.TrimSpace(body) == "" {
		body = "(no output)"
	}
	if title == "" {
		return body
	}
	return title + "\n" + body
}

// EnsureTrailingNewline appends '\n' to non-empty output that lacks one.
func EnsureTrailingNewline(out string) string {
	if out == "" || strings.HasSuffix(out, "\n") {
		return out
	}
	return out + "\n"
}

// blob is the subset of image, audio and resource blocks needed to spill
// them to disk.
type blob struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
	Resource *struct {
		Text     string `json:"text"`
		Blob     string `json:"blob"`
		MIMEType string `json:"mimeType"`
	} `json:"resource"`
}

func render(block mcppool.ContentBlock) (string, bool) {
	if block.IsText() {
		return block.Text, true
	}
	if path, err := spill(block.Raw); err == nil && path != "" {
		return path, true
	}
	raw, err := json.Marshal(block)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// spill writes a binary or resource payload to a temp file and returns its
// path. An empty path means the block carries nothing to spill.
func spill(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var bl blob
	if err := json.Unmarshal(raw, &bl); err != nil {
		return "", err
	}

	var (
		data     []byte
		mimeType string
		err      error
	)
	switch {
	case bl.Type == "image" || bl.Type == "audio":
		mimeType = bl.MIMEType
		data, err = base64.StdEncoding.DecodeString(bl.Data)
	case bl.Type == "resource" && bl.Resource != nil && bl.Resource.Text != "":
		mimeType = bl.Resource.MIMEType
		data = []byte(bl.Resource.Text)
	case bl.Type == "resource" && bl.Resource != nil && bl.Resource.Blob != "":
		mimeType = bl.Resource.MIMEType
		data, err = base64.StdEncoding.DecodeString(bl.Resource.Blob)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return writeTemp("rai-"+bl.Type+"-*"+extension(mimeType), data)
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(f.Name())
		if werr != nil {
			return "", werr
		}
		return "", cerr
	}
	return f.Name(), nil
}

// System mime tables list several extensions per type in no useful
// order, so the common ones are pinned.
var knownExtensions = map[string]string{
	"text/plain":       ".txt",
	"text/markdown":    ".md",
	"text/csv":         ".csv",
	"application/json": ".json",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"audio/wav":        ".wav",
	"audio/mpeg":       ".mp3",
}

func extension(mimeType string) string {
	media, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ".bin"
	}
	if ext, ok := knownExtensions[media]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(media); len(exts) > 0 {
		return exts[0]
	}
	switch {
	case strings.HasPrefix(media, "text/"):
		return ".txt"
	case strings.HasSuffix(media, "+json"):
		return ".json"
	}
	return ".bin"
}
