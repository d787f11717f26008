// Package toolserver serves the built-in command catalogs as MCP tool
// servers over stdio.
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Runner executes argv and returns its combined output.
type Runner interface {
	Run(ctx context.Context, argv []string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, argv []string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, argv []string) ([]byte, error) { return f(ctx, argv) }

type execRunner struct{}

func (execRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

// Server is one catalog bound to an MCP server.
type Server struct {
	catalog  Catalog
	run      Runner
	lookPath func(string) (string, error)
	version  string
	log      *zap.Logger
	mcp      *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithRunner replaces command execution.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.run = r }
}

// WithLookPath replaces the PATH lookup used by probe tools.
func WithLookPath(f func(string) (string, error)) Option {
	return func(s *Server) { s.lookPath = f }
}

// WithVersion sets the version reported during initialize.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New registers every tool of c on a fresh MCP server.
func New(c Catalog, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog:  c,
		run:      execRunner{},
		lookPath: exec.LookPath,
		version:  "dev",
		log:      logger.Named("toolserver").With(zap.String("catalog", c.Name)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer("rai-"+c.Name, s.version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range c.Tools {
		s.mcp.AddTool(definition(t), s.handler(t))
	}
	return s
}

// MCPServer exposes the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks newline-delimited JSON-RPC on in and out until in is closed
// or ctx is done.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.log))
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func definition(t Tool) mcp.Tool {
	props := make(map[string]any, len(t.Params))
	var required []string
	for _, p := range t.Params {
		prop := map[string]any{"type": "string"}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Allowed) > 0 {
			prop["enum"] = p.Allowed
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func (s *Server) handler(t Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		values, err := bindParams(t, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(t.Probe) > 0 {
			return mcp.NewToolResultText(s.probe(t.Probe)), nil
		}

		argv := expand(t.Command, values)
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		out, err := s.run.Run(ctx, argv)
		text := limit(strings.TrimSpace(string(out)), t.MaxOutput)
		s.log.Debug("ran tool", zap.String("tool", t.Name), zap.Strings("argv", argv),
			zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("timed out after %s", timeout)
			}
			if text == "" {
				return mcp.NewToolResultError(fmt.Sprintf("%s: %v", argv[0], err)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v\n%s", argv[0], err, text)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func (s *Server) probe(binaries []string) string {
	lines := make([]string, len(binaries))
	for i, name := range binaries {
		if path, err := s.lookPath(name); err == nil {
			lines[i] = name + ": " + path
		} else {
			lines[i] = name + ": not found"
		}
	}
	return strings.Join(lines, "\n")
}

// bindParams checks the call arguments against t's parameters.
func bindParams(t Tool, args map[string]any) (map[string]string, error) {
	values := make(map[string]string, len(t.Params))
	for _, p := range t.Params {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a string", p.Name)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		if len(p.Allowed) > 0 {
			if !slices.Contains(p.Allowed, v) {
				return nil, fmt.Errorf("%s %q is not allowed; allowed: %s", p.Name, v, strings.Join(p.Allowed, ", "))
			}
		} else {
			pattern := p.Pattern
			if pattern == nil {
				pattern = safeValue
			}
			if !pattern.MatchString(v) {
				return nil, fmt.Errorf("argument %q has invalid value %q", p.Name, v)
			}
		}
		values[p.Name] = v
	}
	return values, nil
}

// expand substitutes {name} placeholders. Elements whose parameter was not
// supplied are dropped.
func expand(command []string, values map[string]string) []string {
	argv := make([]string, 0, len(command))
	for _, a := range command {
		if strings.HasPrefix(a, "{") && strings.HasSuffix(a, "}") {
			if v, ok := values[a[1:len(a)-1]]; ok {
				argv = append(argv, v)
			}
			continue
		}
		argv = append(argv, a)
	}
	return argv
}

// limit caps s at n bytes without splitting a UTF-8 sequence.
func limit(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n..."
}
