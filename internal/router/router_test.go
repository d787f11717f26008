package router

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tlee933/rai/internal/cache"
	"github.com/tlee933/rai/internal/config"
	"github.com/tlee933/rai/internal/intent"
	"github.com/tlee933/rai/internal/mcppool"
)

type toolCall struct {
	server string
	tool   string
	args   map[string]any
}

type fakePool struct {
	mu      sync.Mutex
	tools   []mcppool.ServerTools
	results map[string]*mcppool.CallResult
	errs    map[string]error
	calls   []toolCall
}

func newFakePool(tools ...mcppool.ServerTools) *fakePool {
	return &fakePool{
		tools:   tools,
		results: make(map[string]*mcppool.CallResult),
		errs:    make(map[string]error),
	}
}

func (f *fakePool) respond(server, tool, text string) {
	f.results[server+"/"+tool] = &mcppool.CallResult{Content: []mcppool.ContentBlock{mcppool.TextBlock(text)}}
}

func (f *fakePool) CallTool(_ context.Context, server, tool string, args map[string]any) (*mcppool.CallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolCall{server: server, tool: tool, args: args})
	if err, ok := f.errs[server+"/"+tool]; ok {
		return nil, err
	}
	if res, ok := f.results[server+"/"+tool]; ok {
		return res, nil
	}
	return &mcppool.CallResult{}, nil
}

func (f *fakePool) FindTool(tool string) (string, string, bool) {
	for _, st := range f.tools {
		for _, name := range st.Tools {
			if name == tool {
				return st.Server, name, true
			}
		}
	}
	return "", "", false
}

func (f *fakePool) AllTools() []mcppool.ServerTools { return f.tools }

func (f *fakePool) recorded() []toolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolCall(nil), f.calls...)
}

type fakeLLM struct {
	mu     sync.Mutex
	answer string
	err    error
	system []string
	user   []string
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = append(f.system, system)
	f.user = append(f.user, user)
	return f.answer, f.err
}

type fixedClassifier struct {
	in intent.Intent
}

func (c fixedClassifier) Classify(string) (intent.Intent, bool) { return c.in, true }

var standardTools = []mcppool.ServerTools{
	{Server: "filesystem", Tools: []string{"read_file", "list_directory", "search_files"}},
	{Server: "rocm", Tools: []string{"get_gpu_stats", "get_vram", "get_gpu_temp"}},
	{Server: "linux", Tools: []string{"get_journal_logs", "get_service_status", "list_processes"}},
	{Server: "ublue", Tools: []string{"run_ujust_recipe"}},
}

func TestProcessQueryRoutesToTools(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query  string
		server string
		tool   string
		args   map[string]any
	}{
		{"gpu stats", "rocm", "get_gpu_stats", map[string]any{}},
		{"show gpu vram", "rocm", "get_vram", map[string]any{}},
		{"gpu temp", "rocm", "get_gpu_temp", map[string]any{}},
		{"read /tmp/test.txt", "filesystem", "read_file", map[string]any{"path": "/tmp/test.txt"}},
		{"ls /opt/rocm", "filesystem", "list_directory", map[string]any{"path": "/opt/rocm"}},
		{"find todo", "filesystem", "search_files", map[string]any{"path": ".", "pattern": "todo"}},
		{"get logs", "linux", "get_journal_logs", map[string]any{"lines": 50}},
		{"check logs for nginx", "linux", "get_journal_logs", map[string]any{"lines": 50, "filter": "nginx"}},
		{"is sshd running", "linux", "get_service_status", map[string]any{"service_name": "sshd"}},
		{"ujust update", "ublue", "run_ujust_recipe", map[string]any{"recipe": "update"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			pool := newFakePool(standardTools...)
			llm := &fakeLLM{}
			r := New(pool, llm, zap.NewNop())

			r.ProcessQuery(context.Background(), tt.query)

			calls := pool.recorded()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.server, calls[0].server)
			assert.Equal(t, tt.tool, calls[0].tool)
			assert.Equal(t, tt.args, calls[0].args)
			assert.Empty(t, llm.user, "llm must not be consulted for a routed intent")
		})
	}
}

func TestProcessQueryRendersTitledText(t *testing.T) {
	t.Parallel()

	pool := newFakePool(standardTools...)
	pool.respond("filesystem", "read_file", "hello\n")
	r := New(pool, &fakeLLM{}, zap.NewNop())

	got := r.ProcessQuery(context.Background(), "read /tmp/test.txt")
	assert.Equal(t, "File: /tmp/test.txt\nhello", got)
}

func TestProcessQueryUnknownGPUActionShowsStats(t *testing.T) {
	t.Parallel()

	pool := newFakePool(standardTools...)
	r := New(pool, &fakeLLM{}, zap.NewNop(),
		WithClassifier(fixedClassifier{intent.Intent{Category: intent.CategoryGPU, Action: "clocks"}}))

	r.ProcessQuery(context.Background(), "anything")

	calls := pool.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_gpu_stats", calls[0].tool)
}

func TestProcessQueryForwardsToLLM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		query  string
		in     *intent.Intent
		prompt string
	}{
		{name: "unclassified", query: "what is 15 factorial", prompt: "what is 15 factorial"},
		{name: "git", query: "git diff", prompt: "Run git diff"},
		{name: "build", query: "build", prompt: "Execute: build ninja (target=all)"},
		{name: "file write", query: "create file /tmp/x", prompt: "Execute: file write (path=/tmp/x)"},
		{name: "network", query: "port 8080", prompt: "Execute: network port_check (port=8080)"},
		{name: "process without params", query: "ps", prompt: "Execute: process list"},
		{
			name:   "unrouted system",
			in:     &intent.Intent{Category: intent.CategorySystem, Action: "uptime"},
			prompt: "Get uptime information",
		},
		{
			name:   "unrouted atomic",
			in:     &intent.Intent{Category: intent.CategoryAtomic, Action: "rebase"},
			prompt: "Get atomic desktop rebase information",
		},
		{
			name:   "unrouted ublue",
			in:     &intent.Intent{Category: intent.CategoryUBlue, Action: "containerfile_template"},
			prompt: "Get Universal Blue containerfile_template information",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pool := newFakePool(standardTools...)
			llm := &fakeLLM{answer: "  the answer \n"}
			var opts []Option
			if tt.in != nil {
				opts = append(opts, WithClassifier(fixedClassifier{*tt.in}))
			}
			r := New(pool, llm, zap.NewNop(), opts...)

			got := r.ProcessQuery(context.Background(), tt.query)

			assert.Equal(t, "the answer", got)
			assert.Empty(t, pool.recorded())
			require.Len(t, llm.user, 1)
			assert.Equal(t, tt.prompt, llm.user[0])
		})
	}
}

func TestSystemPromptListsTools(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{answer: "ok"}
	r := New(newFakePool(standardTools...), llm, zap.NewNop(), WithSystemPrompt("You are a test."))

	r.ProcessQuery(context.Background(), "what is 15 factorial")

	require.Len(t, llm.system, 1)
	system := llm.system[0]
	assert.True(t, strings.HasPrefix(system, "You are a test."))
	assert.Contains(t, system, "Available tools:\n")
	assert.Contains(t, system, "rocm: get_gpu_stats, get_vram, get_gpu_temp\n")
	assert.Contains(t, system, "filesystem: read_file, list_directory, search_files\n")
}

func TestSystemPromptDefaultsWhenEmpty(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{answer: "ok"}
	r := New(newFakePool(), llm, zap.NewNop(), WithSystemPrompt("  "))

	r.ProcessQuery(context.Background(), "what is 15 factorial")

	require.Len(t, llm.system, 1)
	assert.Equal(t, DefaultSystemPrompt, llm.system[0])
}

func TestProcessQueryRendersErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "remote",
			err:  &mcppool.RemoteToolError{Server: "rocm", Tool: "get_gpu_stats", Code: -32603, Message: "rocm-smi missing\ntrace"},
			want: "error: rocm/get_gpu_stats: rocm-smi missing ...",
		},
		{
			name: "disconnected",
			err:  &mcppool.DisconnectedError{Server: "rocm", Err: io.EOF},
			want: "error: lost connection to rocm",
		},
		{
			name: "timeout",
			err:  &mcppool.DisconnectedError{Server: "rocm", Err: context.DeadlineExceeded},
			want: "error: rocm timed out",
		},
		{
			name: "stopped",
			err:  &mcppool.DisconnectedError{Server: "rocm", Err: mcppool.ErrPeerStopped},
			want: "error: server rocm is stopped",
		},
		{
			name: "protocol",
			err:  &mcppool.ProtocolError{Server: "rocm", Err: errors.New("invalid character 'x'")},
			want: "error: bad response from rocm: invalid character 'x'",
		},
		{
			name: "unknown server",
			err:  &mcppool.UnknownServerError{Server: "rocm"},
			want: "error: server rocm is not running",
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: "error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pool := newFakePool(standardTools...)
			pool.errs["rocm/get_gpu_stats"] = tt.err
			r := New(pool, &fakeLLM{}, zap.NewNop())

			assert.Equal(t, tt.want, r.ProcessQuery(context.Background(), "gpu stats"))
		})
	}
}

func TestProcessQueryToolReportedError(t *testing.T) {
	t.Parallel()

	pool := newFakePool(standardTools...)
	pool.results["filesystem/read_file"] = &mcppool.CallResult{
		Content: []mcppool.ContentBlock{mcppool.TextBlock("Access denied - path outside allowed directories")},
		IsError: true,
	}
	r := New(pool, &fakeLLM{}, zap.NewNop())

	got := r.ProcessQuery(context.Background(), "read /etc/shadow")
	assert.Equal(t, "error: filesystem/read_file: Access denied - path outside allowed directories", got)
}

func TestProcessQueryFallsBackToAnyServerWithTool(t *testing.T) {
	t.Parallel()

	pool := newFakePool(mcppool.ServerTools{Server: "gpu-box", Tools: []string{"get_vram"}})
	pool.respond("gpu-box", "get_vram", "16 GiB")
	r := New(pool, &fakeLLM{}, zap.NewNop())

	got := r.ProcessQuery(context.Background(), "vram")

	assert.Equal(t, "VRAM Usage\n16 GiB", got)
	calls := pool.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpu-box", calls[0].server)
}

func TestProcessQueryUnknownTool(t *testing.T) {
	t.Parallel()

	pool := newFakePool()
	r := New(pool, &fakeLLM{}, zap.NewNop())

	assert.Equal(t, "error: no server provides get_vram", r.ProcessQuery(context.Background(), "vram"))
	assert.Empty(t, pool.recorded())
}

func TestProcessQueryLLMFailure(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{err: errors.New("sending request: connection refused")}
	r := New(newFakePool(), llm, zap.NewNop())

	got := r.ProcessQuery(context.Background(), "what is 15 factorial")
	assert.Equal(t, "error: llm request failed: sending request: connection refused", got)
}

func TestProcessQueryNoLLM(t *testing.T) {
	t.Parallel()

	r := New(newFakePool(), nil, zap.NewNop())
	assert.Equal(t, "error: no llm configured", r.ProcessQuery(context.Background(), "hello there"))
}

func TestProcessQueryTruncatesLongOutput(t *testing.T) {
	t.Parallel()

	pool := newFakePool(standardTools...)
	pool.respond("linux", "list_processes", strings.Repeat("x", 3*outputLimit))
	r := New(pool, &fakeLLM{}, zap.NewNop())

	got := r.ProcessQuery(context.Background(), "get processes")
	body := strings.TrimPrefix(got, "Running Processes\n")
	assert.Equal(t, strings.Repeat("x", outputLimit)+"\n...", body)
}

func TestProcessQueryCachesResults(t *testing.T) {
	t.Parallel()

	pool := newFakePool(mcppool.ServerTools{Server: "rocm", Tools: []string{"get_gpu_stats", "get_gpu_temp"}})
	pool.respond("rocm", "get_gpu_stats", "busy 12%")
	pool.respond("rocm", "get_gpu_temp", "51C")
	servers := []config.ServerConfig{{
		Name:            "rocm",
		DefaultCacheTTL: "1m",
		NoCacheTools:    []string{"get_gpu_temp"},
	}}
	r := New(pool, &fakeLLM{}, zap.NewNop(), WithCache(cache.New(t.TempDir()), servers))

	first := r.ProcessQuery(context.Background(), "gpu stats")
	pool.respond("rocm", "get_gpu_stats", "busy 99%")
	second := r.ProcessQuery(context.Background(), "gpu stats")
	assert.Equal(t, first, second)
	assert.Equal(t, "GPU Statistics\nbusy 12%", second)

	r.ProcessQuery(context.Background(), "gpu temp")
	r.ProcessQuery(context.Background(), "gpu temp")

	var stats, temps int
	for _, c := range pool.recorded() {
		switch c.tool {
		case "get_gpu_stats":
			stats++
		case "get_gpu_temp":
			temps++
		}
	}
	assert.Equal(t, 1, stats)
	assert.Equal(t, 2, temps)
}

func TestProcessQueryDoesNotCacheToolErrors(t *testing.T) {
	t.Parallel()

	pool := newFakePool(mcppool.ServerTools{Server: "rocm", Tools: []string{"get_gpu_stats"}})
	pool.results["rocm/get_gpu_stats"] = &mcppool.CallResult{
		Content: []mcppool.ContentBlock{mcppool.TextBlock("rocm-smi not found")},
		IsError: true,
	}
	servers := []config.ServerConfig{{Name: "rocm", DefaultCacheTTL: "1m"}}
	r := New(pool, &fakeLLM{}, zap.NewNop(), WithCache(cache.New(t.TempDir()), servers))

	r.ProcessQuery(context.Background(), "gpu stats")
	r.ProcessQuery(context.Background(), "gpu stats")

	assert.Len(t, pool.recorded(), 2)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ab", truncate("ab", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
	// "é" is two bytes; a cut inside it backs up to the rune start.
	assert.Equal(t, "a\n...", truncate("aé", 2))
}

func TestRouteHeadingSubstitutesParams(t *testing.T) {
	t.Parallel()

	rt := routes[intent.CategoryFile]["search"]
	in := intent.Intent{Category: intent.CategoryFile, Action: "search", Params: map[string]string{"pattern": "*.go", "path": "."}}
	assert.Equal(t, "Search results for '*.go'", rt.heading(in))
}
