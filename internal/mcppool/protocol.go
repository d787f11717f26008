package mcppool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is sent in every initialize request.
const ProtocolVersion = "2024-11-05"

const (
	methodInitialize  = "initialize"
	methodInitialized = "initialized"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
	methodPing        = "ping"
)

// maxLineBytes bounds a single response line from a peer.
const maxLineBytes = 10 * 1024 * 1024

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// envelope is any line a peer can send: a response, a notification or a
// request of its own.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (e *envelope) hasID() bool {
	id := bytes.TrimSpace(e.ID)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      clientInfo `json:"serverInfo"`
}

// ToolDescriptor is one entry of a peer's tool catalog. InputSchema is kept
// verbatim for display; arguments are not validated against it.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// CallResult is the outcome of a successful tools/call round trip.
// IsError reports a tool-level failure the server chose to return as content.
type CallResult struct {
	Content []ContentBlock
	IsError bool
}

// ContentKind tags a content block.
type ContentKind string

// ContentText is the only kind whose payload is interpreted.
const ContentText ContentKind = "text"

// ContentBlock is one element of a tools/call content array. Text blocks
// carry their payload in Text; any other kind keeps its original JSON in Raw
// so it survives a round trip unchanged.
type ContentBlock struct {
	Kind ContentKind
	Text string
	Raw  json.RawMessage
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: ContentText, Text: text}
}

// IsText reports whether b is a text block.
func (b ContentBlock) IsText() bool {
	return b.Kind == ContentText
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("content block: %w", err)
	}
	if head.Type == "" {
		return fmt.Errorf("content block: missing type")
	}

	b.Kind = ContentKind(head.Type)
	if b.Kind == ContentText {
		b.Text = head.Text
		b.Raw = nil
		return nil
	}
	b.Text = ""
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if b.Kind != ContentText && len(b.Raw) > 0 {
		return b.Raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}{Type: string(b.Kind), Text: b.Text})
}

func methodNotFound(method string) *RPCError {
	return &RPCError{Code: mcp.METHOD_NOT_FOUND, Message: "method not found: " + method}
}
