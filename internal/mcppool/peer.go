package mcppool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tlee933/rai/internal/config"
	"go.uber.org/zap"
)

// State is a peer's lifecycle position.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateReady
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type options struct {
	handshakeTimeout time.Duration
	callTimeout      time.Duration
	stopGrace        time.Duration
	clientName       string
	clientVersion    string
}

func defaultOptions() options {
	return options{
		handshakeTimeout: config.DefaultHandshakeTimeout,
		callTimeout:      config.DefaultCallTimeout,
		stopGrace:        config.DefaultStopGrace,
		clientName:       "rai",
		clientVersion:    "dev",
	}
}

// Option configures peers created directly or through a Pool.
type Option func(*options)

// WithTimeouts overrides the handshake, per-call and stop grace bounds.
// Zero values keep the defaults.
func WithTimeouts(handshake, call, stopGrace time.Duration) Option {
	return func(o *options) {
		if handshake > 0 {
			o.handshakeTimeout = handshake
		}
		if call > 0 {
			o.callTimeout = call
		}
		if stopGrace > 0 {
			o.stopGrace = stopGrace
		}
	}
}

// WithClientInfo sets the identity sent in initialize.
func WithClientInfo(name, version string) Option {
	return func(o *options) {
		if name != "" {
			o.clientName = name
		}
		if version != "" {
			o.clientVersion = version
		}
	}
}

type callOutcome struct {
	env *envelope
	err error
}

// pendingCall correlates the single in-flight request with its response.
type pendingCall struct {
	id int64
	ch chan callOutcome
}

// Peer owns one tool server process and its stdio JSON-RPC channel.
type Peer struct {
	cfg  config.ServerConfig
	opts options
	log  *zap.Logger

	// callMu admits one tools/call at a time; Stop takes it too so a call
	// always completes before its peer goes away.
	callMu sync.Mutex
	// writeMu serializes writes to stdin.
	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	nextID  int64
	pending *pendingCall
	tools   []ToolDescriptor
	lost    error // set once the channel is unusable

	readers  sync.WaitGroup
	waitOnce sync.Once
	exited   chan struct{}
	exitErr  error
}

// NewPeer returns an unstarted peer for cfg.
func NewPeer(cfg config.ServerConfig, logger *zap.Logger, opts ...Option) *Peer {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Peer{
		cfg:  cfg.Clone(),
		opts: o,
		log:  logger.With(zap.String("server", cfg.Name)),
	}
}

// Name returns the peer's registered name.
func (p *Peer) Name() string {
	return p.cfg.Name
}

// Config returns a copy of the peer's launch configuration.
func (p *Peer) Config() config.ServerConfig {
	return p.cfg.Clone()
}

// State returns the current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Tools returns a copy of the catalog discovered during Start.
func (p *Peer) Tools() []ToolDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ToolDescriptor(nil), p.tools...)
}

// HasTool reports whether the catalog contains name.
func (p *Peer) HasTool(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Start spawns the process and performs the initialize, initialized,
// tools/list handshake.
func (p *Peer) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateUnstarted {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("starting %s: peer is %s", p.cfg.Name, state)
	}
	p.state = StateStarting
	p.mu.Unlock()

	if err := p.spawn(); err != nil {
		p.setState(StateStopped)
		return &SpawnError{Server: p.cfg.Name, Err: err}
	}

	hctx, cancel := context.WithTimeout(ctx, p.opts.handshakeTimeout)
	defer cancel()

	tools, step, err := p.handshake(hctx)
	if err != nil {
		p.setState(StateStopped)
		if serr := p.shutdown(context.Background()); serr != nil {
			p.log.Debug("cleanup after failed handshake", zap.Error(serr))
		}
		return &HandshakeError{Server: p.cfg.Name, Step: step, Err: err}
	}

	p.mu.Lock()
	p.tools = tools
	if p.state == StateStarting {
		p.state = StateReady
	}
	p.mu.Unlock()

	p.log.Debug("peer ready", zap.Int("tools", len(tools)))
	return nil
}

func (p *Peer) spawn() error {
	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Env = mergeEnv(os.Environ(), p.cfg.Env)
	configureCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.mu.Unlock()

	p.readers.Add(2)
	go p.readLoop(stdout)
	go p.drainStderr(stderr)

	p.log.Debug("spawned peer", zap.String("command", p.cfg.Command), zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (p *Peer) handshake(ctx context.Context) ([]ToolDescriptor, string, error) {
	raw, err := p.roundTrip(ctx, methodInitialize, initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: p.opts.clientName, Version: p.opts.clientVersion},
	})
	if err != nil {
		return nil, methodInitialize, err
	}
	var init initializeResult
	if err := decodeObject(raw, &init); err != nil {
		return nil, methodInitialize, &ProtocolError{Server: p.cfg.Name, Err: err}
	}
	p.log.Debug("initialized",
		zap.String("server_name", init.ServerInfo.Name),
		zap.String("protocol_version", init.ProtocolVersion),
	)

	if err := p.write(notification{JSONRPC: mcp.JSONRPC_VERSION, Method: methodInitialized, Params: map[string]any{}}); err != nil {
		p.markLost(err)
		return nil, methodInitialized, &DisconnectedError{Server: p.cfg.Name, Err: err}
	}

	raw, err = p.roundTrip(ctx, methodToolsList, map[string]any{})
	if err != nil {
		return nil, methodToolsList, err
	}
	var list listToolsResult
	if err := decodeObject(raw, &list); err != nil {
		return nil, methodToolsList, &ProtocolError{Server: p.cfg.Name, Err: err}
	}
	return list.Tools, "", nil
}

// CallTool issues tools/call and waits for its response, bounded by the
// call timeout. A timeout or cancellation leaves the peer disconnected.
func (p *Peer) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	switch state := p.State(); state {
	case StateReady:
	case StateStopped:
		return nil, &DisconnectedError{Server: p.cfg.Name, Err: ErrPeerStopped}
	default:
		return nil, &DisconnectedError{Server: p.cfg.Name, Err: p.lostOr(fmt.Errorf("peer is %s", state))}
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.roundTrip(ctx, methodToolsCall, callToolParams{Name: name, Arguments: args})
	if err != nil {
		var remote *RemoteToolError
		if errors.As(err, &remote) {
			remote.Tool = name
		}
		p.log.Debug("tool call failed", zap.String("tool", name), zap.Error(err))
		return nil, err
	}

	var res callToolResult
	if err := decodeObject(raw, &res); err != nil {
		return nil, &ProtocolError{Server: p.cfg.Name, Err: fmt.Errorf("tools/call result: %w", err)}
	}
	p.log.Debug("tool call done",
		zap.String("tool", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("is_error", res.IsError),
	)
	return &CallResult{Content: res.Content, IsError: res.IsError}, nil
}

// roundTrip sends one request and waits for the response carrying its id.
func (p *Peer) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	p.mu.Lock()
	if p.lost != nil {
		lost := p.lost
		p.mu.Unlock()
		return nil, &DisconnectedError{Server: p.cfg.Name, Err: lost}
	}
	p.nextID++
	pc := &pendingCall{id: p.nextID, ch: make(chan callOutcome, 1)}
	p.pending = pc
	p.mu.Unlock()

	if err := p.write(request{JSONRPC: mcp.JSONRPC_VERSION, ID: pc.id, Method: method, Params: params}); err != nil {
		p.clearPending(pc)
		p.markLost(err)
		return nil, &DisconnectedError{Server: p.cfg.Name, Err: err}
	}

	select {
	case out := <-pc.ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.env.Error != nil {
			return nil, &RemoteToolError{
				Server:  p.cfg.Name,
				Method:  method,
				Code:    out.env.Error.Code,
				Message: out.env.Error.Message,
			}
		}
		if len(out.env.Result) == 0 {
			return nil, &ProtocolError{Server: p.cfg.Name, Err: errors.New("response has neither result nor error")}
		}
		return out.env.Result, nil
	case <-ctx.Done():
		p.clearPending(pc)
		p.markLost(ctx.Err())
		return nil, &DisconnectedError{Server: p.cfg.Name, Err: ctx.Err()}
	}
}

func (p *Peer) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	p.mu.Lock()
	stdin := p.stdin
	p.mu.Unlock()
	if stdin == nil {
		return ErrPeerStopped
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err = stdin.Write(data)
	return err
}

func (p *Peer) readLoop(r io.Reader) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		p.dispatch(line)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	p.markLost(err)
}

func (p *Peer) dispatch(line []byte) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		p.deliverAny(callOutcome{err: &ProtocolError{
			Server: p.cfg.Name,
			Err:    fmt.Errorf("decoding %q: %w", truncate(line, 120), err),
		}})
		return
	}

	if !env.hasID() {
		if env.Error != nil {
			p.deliverAny(callOutcome{env: &env})
			return
		}
		p.log.Debug("ignoring notification", zap.String("method", env.Method))
		return
	}

	if env.Method != "" {
		p.answerServerRequest(&env)
		return
	}

	id, err := strconv.ParseInt(string(bytes.TrimSpace(env.ID)), 10, 64)
	if err != nil {
		p.log.Debug("dropping response with foreign id", zap.ByteString("id", env.ID))
		return
	}
	p.deliver(id, callOutcome{env: &env})
}

// answerServerRequest replies to requests a peer sends us. Only ping is
// understood.
func (p *Peer) answerServerRequest(env *envelope) {
	resp := reply{JSONRPC: mcp.JSONRPC_VERSION, ID: env.ID}
	if env.Method == methodPing {
		resp.Result = json.RawMessage(`{}`)
	} else {
		resp.Error = methodNotFound(env.Method)
	}
	if err := p.write(resp); err != nil {
		p.log.Debug("answering peer request", zap.String("method", env.Method), zap.Error(err))
	}
}

func (p *Peer) deliver(id int64, out callOutcome) {
	p.mu.Lock()
	pc := p.pending
	if pc == nil || pc.id != id {
		p.mu.Unlock()
		p.log.Debug("dropping uncorrelated response", zap.Int64("id", id))
		return
	}
	p.pending = nil
	p.mu.Unlock()
	pc.ch <- out
}

// deliverAny hands out to whatever request is in flight. Used for lines
// that cannot carry a usable id.
func (p *Peer) deliverAny(out callOutcome) {
	p.mu.Lock()
	pc := p.pending
	p.pending = nil
	p.mu.Unlock()
	if pc == nil {
		if out.err != nil {
			p.log.Warn("unexpected output from peer", zap.Error(out.err))
		}
		return
	}
	pc.ch <- out
}

func (p *Peer) clearPending(pc *pendingCall) {
	p.mu.Lock()
	if p.pending == pc {
		p.pending = nil
	}
	p.mu.Unlock()
}

// markLost records that the channel is unusable and fails the in-flight
// request, if any.
func (p *Peer) markLost(cause error) {
	p.mu.Lock()
	if p.lost == nil {
		p.lost = cause
	}
	if p.state == StateStarting || p.state == StateReady {
		p.state = StateDisconnected
	}
	pc := p.pending
	p.pending = nil
	p.mu.Unlock()

	if pc != nil {
		pc.ch <- callOutcome{err: &DisconnectedError{Server: p.cfg.Name, Err: cause}}
	}
}

func (p *Peer) lostOr(fallback error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost != nil {
		return p.lost
	}
	return fallback
}

func (p *Peer) drainStderr(r io.Reader) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		p.log.Debug("peer stderr", zap.String("line", scanner.Text()))
	}
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Stop asks the process to terminate and waits up to the stop grace period.
// It does not escalate past SIGTERM. Stopping a stopped peer is a no-op.
func (p *Peer) Stop(ctx context.Context) error {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	p.mu.Lock()
	prev := p.state
	p.state = StateStopped
	if p.lost == nil {
		// Claimed before the pipes close so readLoop's EOF is not taken
		// for a crash.
		p.lost = ErrPeerStopped
	}
	p.mu.Unlock()

	if prev == StateStopped || prev == StateUnstarted {
		return nil
	}
	return p.shutdown(ctx)
}

func (p *Peer) shutdown(ctx context.Context) error {
	p.mu.Lock()
	cmd := p.cmd
	stdin := p.stdin
	p.stdin = nil
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Debug("signalling peer", zap.Error(err))
	}
	if stdin != nil {
		p.writeMu.Lock()
		_ = stdin.Close()
		p.writeMu.Unlock()
	}

	exited := p.waitExit(cmd)

	timer := time.NewTimer(p.opts.stopGrace)
	defer timer.Stop()

	select {
	case <-exited:
		if err := p.exitErr; err != nil && !terminatedBySignal(err) {
			return fmt.Errorf("stopping %s: %w", p.cfg.Name, err)
		}
		p.log.Debug("peer stopped")
		return nil
	case <-timer.C:
		return fmt.Errorf("stopping %s: process did not exit within %s", p.cfg.Name, p.opts.stopGrace)
	case <-ctx.Done():
		return fmt.Errorf("stopping %s: %w", p.cfg.Name, ctx.Err())
	}
}

// waitExit reaps the process once its pipes have drained. Safe to call more
// than once.
func (p *Peer) waitExit(cmd *exec.Cmd) <-chan struct{} {
	p.waitOnce.Do(func() {
		p.exited = make(chan struct{})
		go func() {
			p.readers.Wait()
			p.exitErr = cmd.Wait()
			close(p.exited)
		}()
	})
	return p.exited
}

// mergeEnv overlays overrides onto base, replacing existing keys.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(base)+len(keys))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[k]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

func decodeObject(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("result is not an object: %s", truncate(trimmed, 80))
	}
	return json.Unmarshal(trimmed, v)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
