// Package router turns a natural-language query into either a tool call on
// a registered server or a request to the LLM.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tlee933/rai/internal/cache"
	"github.com/tlee933/rai/internal/config"
	"github.com/tlee933/rai/internal/intent"
	"github.com/tlee933/rai/internal/mcppool"
	"github.com/tlee933/rai/internal/response"
)

// DefaultSystemPrompt introduces the assistant to the LLM. The list of
// available tools is appended at query time.
const DefaultSystemPrompt = `You are rai, a terminal-native assistant for Fedora and ROCm development.

Style:
- Concise, technical responses
- Use terminal-friendly formatting
- Prefer showing code and commands over explanations
- Always warn before destructive operations`

// Classifier maps a query to an intent.
type Classifier interface {
	Classify(query string) (intent.Intent, bool)
}

// ToolCaller is the part of mcppool.Pool the router needs.
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (*mcppool.CallResult, error)
	FindTool(tool string) (server, name string, ok bool)
	AllTools() []mcppool.ServerTools
}

// Completer answers free-form requests.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Router dispatches queries. It is safe for concurrent use when its
// collaborators are.
type Router struct {
	classifier   Classifier
	tools        ToolCaller
	llm          Completer
	store        *cache.Store
	servers      map[string]config.ServerConfig
	systemPrompt string
	log          *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier replaces the default pattern classifier.
func WithClassifier(c Classifier) Option {
	return func(r *Router) { r.classifier = c }
}

// WithCache enables result caching using each server's cache settings.
func WithCache(store *cache.Store, servers []config.ServerConfig) Option {
	return func(r *Router) {
		r.store = store
		r.servers = make(map[string]config.ServerConfig, len(servers))
		for _, s := range servers {
			r.servers[s.Name] = s
		}
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt. Empty keeps the default.
func WithSystemPrompt(prompt string) Option {
	return func(r *Router) {
		if strings.TrimSpace(prompt) != "" {
			r.systemPrompt = prompt
		}
	}
}

// New returns a router over tools and llm.
func New(tools ToolCaller, llm Completer, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		classifier:   intent.New(),
		tools:        tools,
		llm:          llm,
		systemPrompt: DefaultSystemPrompt,
		log:          logger.Named("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessQuery answers query. It never fails: every error is rendered as a
// single "error: ..." line.
func (r *Router) ProcessQuery(ctx context.Context, query string) string {
	log := r.log.With(zap.String("query_id", uuid.NewString()))

	in, ok := r.classifier.Classify(query)
	if !ok {
		log.Debug("no intent, asking llm")
		return r.ask(ctx, log, query)
	}
	log = log.With(zap.Stringer("intent", in))

	rt, ok := lookup(in)
	if !ok {
		prompt := fallbackPrompt(in)
		log.Debug("no route, asking llm", zap.String("prompt", prompt))
		return r.ask(ctx, log, prompt)
	}
	return r.call(ctx, log, in, rt)
}

func (r *Router) call(ctx context.Context, log *zap.Logger, in intent.Intent, rt route) string {
	server, tool, err := r.resolve(rt)
	if err != nil {
		log.Warn("route unresolved", zap.Error(err))
		return renderError(err)
	}
	args := rt.arguments(in)
	log = log.With(zap.String("server", server), zap.String("tool", tool))

	ttl, cacheable := r.cachePolicy(log, server, tool)
	if cacheable {
		if hit, ok := r.store.Lookup(server, tool, args); ok {
			log.Debug("cache hit", zap.Duration("age", hit.Age), zap.Duration("ttl", hit.TTL))
			return r.render(in, rt, hit.Content)
		}
	}

	res, err := r.tools.CallTool(ctx, server, tool, args)
	if err != nil {
		log.Warn("tool call failed", zap.Error(err))
		return renderError(err)
	}
	if res.IsError {
		body := response.Text(res.Content)
		log.Warn("tool reported error", zap.String("output", body))
		return fmt.Sprintf("error: %s/%s: %s", server, tool, oneLine(body))
	}

	if cacheable {
		if err := r.store.Put(server, tool, args, res.Content, ttl); err != nil {
			log.Warn("caching result", zap.Error(err))
		}
	}
	return r.render(in, rt, res.Content)
}

func (r *Router) render(in intent.Intent, rt route, content []mcppool.ContentBlock) string {
	return response.Titled(rt.heading(in), truncate(response.Text(content), rt.limit))
}

// resolve prefers the route's server. When that server is not registered,
// any peer advertising the tool serves it.
func (r *Router) resolve(rt route) (string, string, error) {
	for _, st := range r.tools.AllTools() {
		if st.Server == rt.server {
			return rt.server, rt.tool, nil
		}
	}
	if server, name, ok := r.tools.FindTool(rt.tool); ok {
		return server, name, nil
	}
	return "", "", &mcppool.UnknownToolError{Tool: rt.tool}
}

func (r *Router) cachePolicy(log *zap.Logger, server, tool string) (time.Duration, bool) {
	if r.store == nil {
		return 0, false
	}
	scfg, ok := r.servers[server]
	if !ok {
		return 0, false
	}
	ttl, ok, err := cache.EffectiveTTL(scfg, tool)
	if err != nil {
		log.Warn("cache disabled", zap.Error(err))
		return 0, false
	}
	return ttl, ok
}

func (r *Router) ask(ctx context.Context, log *zap.Logger, prompt string) string {
	if r.llm == nil {
		return "error: no llm configured"
	}
	answer, err := r.llm.Complete(ctx, r.buildSystemPrompt(), prompt)
	if err != nil {
		log.Warn("llm request failed", zap.Error(err))
		return "error: llm request failed: " + oneLine(err.Error())
	}
	return strings.TrimSpace(answer)
}

// buildSystemPrompt appends the servers and tools available right now.
func (r *Router) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(r.systemPrompt)
	all := r.tools.AllTools()
	if len(all) == 0 {
		return b.String()
	}
	b.WriteString("\n\nAvailable tools:\n")
	for _, st := range all {
		fmt.Fprintf(&b, "%s: %s\n", st.Server, strings.Join(st.Tools, ", "))
	}
	return b.String()
}

func renderError(err error) string {
	var (
		unknownServer *mcppool.UnknownServerError
		unknownTool   *mcppool.UnknownToolError
		remote        *mcppool.RemoteToolError
		disconnected  *mcppool.DisconnectedError
		protocol      *mcppool.ProtocolError
	)
	switch {
	case errors.As(err, &unknownServer):
		return fmt.Sprintf("error: server %s is not running", unknownServer.Server)
	case errors.As(err, &unknownTool):
		return fmt.Sprintf("error: no server provides %s", unknownTool.Tool)
	case errors.As(err, &remote):
		target := remote.Tool
		if target == "" {
			target = remote.Method
		}
		return fmt.Sprintf("error: %s/%s: %s", remote.Server, target, oneLine(remote.Message))
	case errors.As(err, &disconnected):
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Sprintf("error: %s timed out", disconnected.Server)
		}
		if errors.Is(err, mcppool.ErrPeerStopped) {
			return fmt.Sprintf("error: server %s is stopped", disconnected.Server)
		}
		return fmt.Sprintf("error: lost connection to %s", disconnected.Server)
	case errors.As(err, &protocol):
		return fmt.Sprintf("error: bad response from %s: %s", protocol.Server, oneLine(protocol.Err.Error()))
	default:
		return "error: " + oneLine(err.Error())
	}
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i]) + " ..."
	}
	if s == "" {
		return "(no details)"
	}
	return s
}

// truncate keeps at most limit bytes of s without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n..."
}
