package mcppool

import (
	"errors"
	"fmt"
)

// ErrPeerStopped is the cause carried by DisconnectedError once a peer has
// been stopped.
var ErrPeerStopped = errors.New("peer stopped")

// SpawnError reports that a peer's process could not be started.
type SpawnError struct {
	Server string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Server, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError reports that a started peer failed initialize, the
// initialized notification or tools/list.
type HandshakeError struct {
	Server string
	Step   string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed during %s: %v", e.Server, e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ProtocolError reports a line that is not a valid JSON-RPC response.
type ProtocolError struct {
	Server string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed message from %s: %v", e.Server, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DisconnectedError reports that a peer's output ended, a call timed out, or
// the peer is no longer running. Err is the cause (io.EOF,
// context.DeadlineExceeded, ErrPeerStopped, ...).
type DisconnectedError struct {
	Server string
	Err    error
}

func (e *DisconnectedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s disconnected", e.Server)
	}
	return fmt.Sprintf("%s disconnected: %v", e.Server, e.Err)
}

func (e *DisconnectedError) Unwrap() error { return e.Err }

// RemoteToolError is a JSON-RPC error object returned by a peer.
type RemoteToolError struct {
	Server  string
	Method  string
	Tool    string
	Code    int
	Message string
}

func (e *RemoteToolError) Error() string {
	target := e.Method
	if e.Tool != "" {
		target = e.Tool
	}
	return fmt.Sprintf("%s: %s failed: %s (code %d)", e.Server, target, e.Message, e.Code)
}

// UnknownServerError reports a call addressed to an unregistered peer.
type UnknownServerError struct {
	Server string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("unknown server: %s", e.Server)
}

// UnknownToolError reports that no registered peer advertises a tool.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("no server provides tool %s", e.Tool)
}

// DuplicateServerError reports an attempt to register a name twice.
type DuplicateServerError struct {
	Server string
}

func (e *DuplicateServerError) Error() string {
	return fmt.Sprintf("server %s is already registered", e.Server)
}
