package mcppool

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tlee933/rai/internal/config"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	pool := New(zap.NewNop(), testOptions()...)
	t.Cleanup(func() {
		_ = pool.StopAll(context.Background())
	})
	return pool
}

func addHelper(t *testing.T, pool *Pool, name, mode string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := pool.AddServer(ctx, helperServer(name, mode)); err != nil {
		t.Fatalf("AddServer(%s) error = %v", name, err)
	}
}

func TestPoolAddServerAndCallTool(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "helper", "echo")

	res, err := pool.CallTool(context.Background(), "helper", "echo", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	want := []ContentBlock{{Kind: "text", Text: "1"}}
	if !reflect.DeepEqual(res.Content, want) {
		t.Fatalf("CallTool() content = %#v, want %#v", res.Content, want)
	}
}

func TestPoolAddServerRejectsDuplicate(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "helper", "echo")

	err := pool.AddServer(context.Background(), helperServer("helper", "echo"))
	var dup *DuplicateServerError
	if !errors.As(err, &dup) {
		t.Fatalf("AddServer() error = %v, want DuplicateServerError", err)
	}
	if got := pool.Servers(); !reflect.DeepEqual(got, []string{"helper"}) {
		t.Fatalf("Servers() = %v, want [helper]", got)
	}
}

func TestPoolAddServerPropagatesStartErrors(t *testing.T) {
	pool := newTestPool(t)

	err := pool.AddServer(context.Background(), config.ServerConfig{Name: "missing", Command: "/nonexistent/rai-no-such-server"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("AddServer() error = %v, want SpawnError", err)
	}
	if len(pool.Servers()) != 0 {
		t.Fatalf("Servers() = %v, want empty", pool.Servers())
	}

	// The name is free again after a failed start.
	addHelper(t, pool, "missing", "echo")
}

func TestPoolCallToolUnknownServer(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.CallTool(context.Background(), "nope", "echo", nil)
	var unknown *UnknownServerError
	if !errors.As(err, &unknown) {
		t.Fatalf("CallTool() error = %v, want UnknownServerError", err)
	}
}

func TestPoolFaultIsolation(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "broken", "hangup")
	addHelper(t, pool, "healthy", "echo")

	_, err := pool.CallTool(context.Background(), "broken", "echo", map[string]any{"x": 1})
	var disc *DisconnectedError
	if !errors.As(err, &disc) {
		t.Fatalf("CallTool(broken) error = %v, want DisconnectedError", err)
	}

	res, err := pool.CallTool(context.Background(), "healthy", "echo", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("CallTool(healthy) error = %v", err)
	}
	if res.Content[0].Text != "1" {
		t.Fatalf("CallTool(healthy) text = %q, want 1", res.Content[0].Text)
	}
}

func TestPoolStopAllContinuesPastFailures(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "a", "echo")
	addHelper(t, pool, "b", "dirty")
	addHelper(t, pool, "c", "echo")

	var peers []*Peer
	for _, name := range []string{"a", "b", "c"} {
		peer, ok := pool.Peer(name)
		if !ok {
			t.Fatalf("Peer(%s) ok = false", name)
		}
		peers = append(peers, peer)
	}

	err := pool.StopAll(context.Background())
	if err == nil {
		t.Fatal("StopAll() error = nil, want failure from b")
	}
	if !strings.Contains(err.Error(), "stopping b") {
		t.Fatalf("StopAll() error = %v, want b failure", err)
	}
	if strings.Contains(err.Error(), "stopping a") || strings.Contains(err.Error(), "stopping c") {
		t.Fatalf("StopAll() error = %v, want only b", err)
	}

	for _, peer := range peers {
		if got := peer.State(); got != StateStopped {
			t.Fatalf("%s State() = %s, want stopped", peer.Name(), got)
		}
	}
	if len(pool.Servers()) != 0 {
		t.Fatalf("Servers() = %v, want empty", pool.Servers())
	}
}

func TestPoolFindToolFirstRegisteredWins(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "first", "echo")
	addHelper(t, pool, "second", "mcp")
	addHelper(t, pool, "third", "echo")

	server, tool, ok := pool.FindTool("echo")
	if !ok || server != "first" || tool != "echo" {
		t.Fatalf("FindTool(echo) = %q, %q, %v, want first, echo, true", server, tool, ok)
	}
	server, _, ok = pool.FindTool("shout")
	if !ok || server != "second" {
		t.Fatalf("FindTool(shout) = %q, %v, want second", server, ok)
	}
	if _, _, ok := pool.FindTool("missing_tool"); ok {
		t.Fatal("FindTool(missing_tool) ok = true, want false")
	}
}

func TestPoolCallToolByName(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "mcp", "mcp")

	server, res, err := pool.CallToolByName(context.Background(), "shout", map[string]any{"text": "quiet"})
	if err != nil {
		t.Fatalf("CallToolByName() error = %v", err)
	}
	if server != "mcp" || res.Content[0].Text != "QUIET" {
		t.Fatalf("CallToolByName() = %q, %#v", server, res.Content)
	}

	_, _, err = pool.CallToolByName(context.Background(), "nothing", nil)
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("CallToolByName() error = %v, want UnknownToolError", err)
	}
}

func TestPoolAllToolsAndToolInfo(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "scripted", "echo")
	addHelper(t, pool, "mcp", "mcp")

	all := pool.AllTools()
	if len(all) != 2 || all[0].Server != "scripted" || all[1].Server != "mcp" {
		t.Fatalf("AllTools() = %#v, want scripted then mcp", all)
	}
	if len(all[0].Tools) != len(helperTools) || all[0].Tools[0] != "echo" {
		t.Fatalf("AllTools()[0].Tools = %v", all[0].Tools)
	}
	if !reflect.DeepEqual(all[1].Tools, []string{"shout"}) {
		t.Fatalf("AllTools()[1].Tools = %v, want [shout]", all[1].Tools)
	}

	// Snapshots are copies.
	all[0].Tools[0] = "mutated"
	if pool.AllTools()[0].Tools[0] != "echo" {
		t.Fatal("AllTools() returned shared slice")
	}

	var shout *ToolInfo
	for _, info := range pool.ToolInfo() {
		if info.Name == "shout" {
			info := info
			shout = &info
		}
	}
	if shout == nil || shout.Server != "mcp" || shout.Description != "Upper-cases text" {
		t.Fatalf("ToolInfo() shout = %#v", shout)
	}
	if !strings.Contains(string(shout.InputSchema), `"text"`) {
		t.Fatalf("shout schema = %s, want text property", shout.InputSchema)
	}
}

func TestPoolStartAllRegistersInConfigOrder(t *testing.T) {
	pool := newTestPool(t)
	cfgs := []config.ServerConfig{
		helperServer("one", "echo"),
		helperServer("two", "crash"),
		helperServer("three", "mcp"),
		{Name: "four", Command: "/nonexistent/rai-optional-server", Optional: true},
		helperServer("one", "echo"),
	}

	err := pool.StartAll(context.Background(), cfgs)
	if err == nil {
		t.Fatal("StartAll() error = nil, want joined failures")
	}
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) || hsErr.Server != "two" {
		t.Fatalf("StartAll() error = %v, want HandshakeError for two", err)
	}
	var dup *DuplicateServerError
	if !errors.As(err, &dup) || dup.Server != "one" {
		t.Fatalf("StartAll() error = %v, want DuplicateServerError for one", err)
	}

	if got := pool.Servers(); !reflect.DeepEqual(got, []string{"one", "three"}) {
		t.Fatalf("Servers() = %v, want [one three]", got)
	}
}

func TestPoolRestartReplacesStoppedPeer(t *testing.T) {
	pool := newTestPool(t)
	addHelper(t, pool, "helper", "echo")

	old, _ := pool.Peer("helper")
	if err := old.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := pool.CallTool(context.Background(), "helper", "echo", nil); err == nil {
		t.Fatal("CallTool() on stopped peer error = nil, want non-nil")
	}

	if err := pool.Restart(context.Background(), "helper"); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	res, err := pool.CallTool(context.Background(), "helper", "echo", map[string]any{"x": true})
	if err != nil {
		t.Fatalf("CallTool() after Restart error = %v", err)
	}
	if res.Content[0].Text != "true" {
		t.Fatalf("CallTool() text = %q, want true", res.Content[0].Text)
	}

	if err := pool.Restart(context.Background(), "nope"); err == nil {
		t.Fatal("Restart(nope) error = nil, want UnknownServerError")
	}
}

func TestNormalizeToolAlias(t *testing.T) {
	tests := map[string]string{
		"read-file": "read_file",
		"read_file": "read-file",
		"plain":     "plain",
	}
	for in, want := range tests {
		if got := normalizeToolAlias(in); got != want {
			t.Fatalf("normalizeToolAlias(%q) = %q, want %q", in, got, want)
		}
	}
}
