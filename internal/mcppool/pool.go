package mcppool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tlee933/rai/internal/bootstrap"
	"github.com/tlee933/rai/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ServerTools lists the tool names one peer advertises.
type ServerTools struct {
	Server string
	Tools  []string
}

// ToolInfo is a tool descriptor together with the peer that serves it.
type ToolInfo struct {
	Server      string
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Pool is the registry of running peers. Peers are kept in registration
// order, which decides which peer serves a tool name advertised twice.
type Pool struct {
	log  *zap.Logger
	opts []Option

	mu       sync.RWMutex
	peers    map[string]*Peer
	order    []string
	starting map[string]struct{}
}

// New creates an empty pool. opts apply to every peer it starts.
func New(logger *zap.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		log:      logger,
		opts:     opts,
		peers:    make(map[string]*Peer),
		starting: make(map[string]struct{}),
	}
}

func (p *Pool) reserve(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.peers[name]; ok {
		return &DuplicateServerError{Server: name}
	}
	if _, ok := p.starting[name]; ok {
		return &DuplicateServerError{Server: name}
	}
	p.starting[name] = struct{}{}
	return nil
}

func (p *Pool) release(name string) {
	p.mu.Lock()
	delete(p.starting, name)
	p.mu.Unlock()
}

// AddServer starts a peer for cfg and registers it once its handshake
// succeeds. Start failures are returned unchanged.
func (p *Pool) AddServer(ctx context.Context, cfg config.ServerConfig) error {
	if err := p.reserve(cfg.Name); err != nil {
		return err
	}

	peer := NewPeer(cfg, p.log, p.opts...)
	if err := peer.Start(ctx); err != nil {
		p.release(cfg.Name)
		return err
	}

	p.mu.Lock()
	delete(p.starting, cfg.Name)
	p.peers[cfg.Name] = peer
	p.order = append(p.order, cfg.Name)
	p.mu.Unlock()

	p.log.Info("tool server ready", zap.String("server", cfg.Name), zap.Int("tools", len(peer.Tools())))
	return nil
}

// StartAll starts every server concurrently and registers the ones that
// came up in cfgs order. Optional servers whose command is missing are
// skipped. Failures are joined; the remaining servers still start.
func (p *Pool) StartAll(ctx context.Context, cfgs []config.ServerConfig) error {
	peers := make([]*Peer, len(cfgs))
	errs := make([]error, len(cfgs))

	var g errgroup.Group
	for i, cfg := range cfgs {
		if cfg.Optional {
			if err := bootstrap.CheckPrerequisites(cfg); err != nil {
				p.log.Info("skipping optional tool server", zap.String("server", cfg.Name), zap.Error(err))
				continue
			}
		}
		if err := p.reserve(cfg.Name); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			peer := NewPeer(cfg, p.log, p.opts...)
			if err := peer.Start(ctx); err != nil {
				errs[i] = err
				return nil
			}
			peers[i] = peer
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	for i, cfg := range cfgs {
		if errs[i] != nil {
			if _, isDup := errs[i].(*DuplicateServerError); !isDup {
				delete(p.starting, cfg.Name)
			}
			continue
		}
		peer := peers[i]
		if peer == nil {
			continue
		}
		delete(p.starting, cfg.Name)
		p.peers[cfg.Name] = peer
		p.order = append(p.order, cfg.Name)
	}
	p.mu.Unlock()

	for i, cfg := range cfgs {
		if errs[i] != nil {
			p.log.Error("tool server failed to start", zap.String("server", cfg.Name), zap.Error(errs[i]))
		} else if peers[i] != nil {
			p.log.Info("tool server ready", zap.String("server", cfg.Name), zap.Int("tools", len(peers[i].Tools())))
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) snapshot() []*Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peers := make([]*Peer, 0, len(p.order))
	for _, name := range p.order {
		peers = append(peers, p.peers[name])
	}
	return peers
}

// Servers returns registered server names in registration order.
func (p *Pool) Servers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Peer returns the registered peer called name.
func (p *Pool) Peer(name string) (*Peer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.peers[name]
	return peer, ok
}

// AllTools returns each peer's advertised tool names at call time.
func (p *Pool) AllTools() []ServerTools {
	peers := p.snapshot()
	out := make([]ServerTools, 0, len(peers))
	for _, peer := range peers {
		tools := peer.Tools()
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		out = append(out, ServerTools{Server: peer.Name(), Tools: names})
	}
	return out
}

// ToolInfo returns the full descriptor of every advertised tool.
func (p *Pool) ToolInfo() []ToolInfo {
	var out []ToolInfo
	for _, peer := range p.snapshot() {
		for _, t := range peer.Tools() {
			out = append(out, ToolInfo{
				Server:      peer.Name(),
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	return out
}

// FindTool returns the first registered peer advertising tool. Exact names
// are searched across all peers before dash/underscore aliases.
func (p *Pool) FindTool(tool string) (server, name string, ok bool) {
	peers := p.snapshot()
	for _, peer := range peers {
		if peer.HasTool(tool) {
			return peer.Name(), tool, true
		}
	}

	alias := normalizeToolAlias(tool)
	if alias == tool {
		return "", "", false
	}
	for _, peer := range peers {
		if peer.HasTool(alias) {
			return peer.Name(), alias, true
		}
	}
	return "", "", false
}

func normalizeToolAlias(name string) string {
	if strings.Contains(name, "-") {
		return strings.ReplaceAll(name, "-", "_")
	}
	if strings.Contains(name, "_") {
		return strings.ReplaceAll(name, "_", "-")
	}
	return name
}

// CallTool forwards a tools/call to the named peer.
func (p *Pool) CallTool(ctx context.Context, server, tool string, args map[string]any) (*CallResult, error) {
	peer, ok := p.Peer(server)
	if !ok {
		return nil, &UnknownServerError{Server: server}
	}
	return peer.CallTool(ctx, tool, args)
}

// CallToolByName calls tool on whichever peer FindTool picks.
func (p *Pool) CallToolByName(ctx context.Context, tool string, args map[string]any) (string, *CallResult, error) {
	server, name, ok := p.FindTool(tool)
	if !ok {
		return "", nil, &UnknownToolError{Tool: tool}
	}
	res, err := p.CallTool(ctx, server, name, args)
	return server, res, err
}

// Restart stops the named peer and starts a fresh one from the same
// config, keeping its registration position. On failure the stopped peer
// stays registered and keeps failing calls.
func (p *Pool) Restart(ctx context.Context, name string) error {
	old, ok := p.Peer(name)
	if !ok {
		return &UnknownServerError{Server: name}
	}
	if err := old.Stop(ctx); err != nil {
		p.log.Warn("stopping tool server for restart", zap.String("server", name), zap.Error(err))
	}

	fresh := NewPeer(old.Config(), p.log, p.opts...)
	if err := fresh.Start(ctx); err != nil {
		return fmt.Errorf("restarting %s: %w", name, err)
	}

	p.mu.Lock()
	if current, ok := p.peers[name]; ok && current == old {
		p.peers[name] = fresh
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Removed or replaced while we were starting.
	_ = fresh.Stop(context.Background())
	return &UnknownServerError{Server: name}
}

// StopAll stops and unregisters every peer. A failing peer does not stop
// the sweep; all failures are returned joined.
func (p *Pool) StopAll(ctx context.Context) error {
	p.mu.Lock()
	peers := make([]*Peer, 0, len(p.order))
	for _, name := range p.order {
		peers = append(peers, p.peers[name])
	}
	p.peers = make(map[string]*Peer)
	p.order = nil
	p.mu.Unlock()

	errs := make([]error, len(peers))
	var g errgroup.Group
	for i, peer := range peers {
		g.Go(func() error {
			if err := peer.Stop(ctx); err != nil {
				p.log.Warn("tool server did not stop cleanly", zap.String("server", peer.Name()), zap.Error(err))
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
