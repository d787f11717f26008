package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tlee933/rai/internal/cache"
	"github.com/tlee933/rai/internal/config"
	"github.com/tlee933/rai/internal/llm"
	"github.com/tlee933/rai/internal/mcppool"
	"github.com/tlee933/rai/internal/response"
	"github.com/tlee933/rai/internal/router"
)

// toolPool is the part of mcppool.Pool the commands use.
type toolPool interface {
	router.ToolCaller
	CallToolByName(ctx context.Context, tool string, args map[string]any) (string, *mcppool.CallResult, error)
	Restart(ctx context.Context, name string) error
	ToolInfo() []mcppool.ToolInfo
	StopAll(ctx context.Context) error
}

// startPool starts every configured server. Servers that fail are logged by
// the pool and left out; the others still serve queries.
var startPool = func(ctx context.Context, cfg *config.Config, log *zap.Logger) toolPool {
	pool := mcppool.New(log,
		mcppool.WithTimeouts(cfg.Timeouts.HandshakeTimeout(), cfg.Timeouts.CallTimeout(), cfg.Timeouts.StopGracePeriod()),
		mcppool.WithClientInfo("rai", buildVersion),
	)
	if err := pool.StartAll(ctx, cfg.Servers); err != nil {
		log.Debug("tool servers unavailable", zap.Error(err))
	}
	return pool
}

var newCompleter = func(cfg config.LLMConfig, log *zap.Logger) router.Completer {
	return llm.New(cfg, log)
}

var resultCache = cache.Default

func stopPool(pool toolPool, log *zap.Logger) {
	if err := pool.StopAll(context.Background()); err != nil {
		log.Warn("stopping tool servers", zap.Error(err))
	}
}

func (a *app) runQuery(cmd *cobra.Command, args []string) error {
	queries, err := readQueries(args)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		_ = cmd.Usage()
		return usageErrorf("no query given")
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool := startPool(ctx, cfg, a.log)
	defer stopPool(pool, a.log)

	store := resultCache()
	a.log.Debug("result cache", zap.String("dir", store.Dir()))
	r := router.New(pool, newCompleter(cfg.LLM, a.log), a.log,
		router.WithSystemPrompt(cfg.LLM.SystemPrompt),
		router.WithCache(store, cfg.Servers),
	)

	failed := false
	for i, q := range queries {
		if i > 0 {
			fmt.Fprintln(rootStdout)
		}
		answer := r.ProcessQuery(ctx, q)
		fmt.Fprint(rootStdout, response.EnsureTrailingNewline(answer))
		if strings.HasPrefix(answer, "error: ") {
			failed = true
		}
	}
	if failed {
		return &exitError{code: ExitToolErr}
	}
	return nil
}

// stdinPiped reports whether stdin is redirected rather than a terminal.
var stdinPiped = func() bool {
	f, ok := rootStdin.(*os.File)
	return ok && !term.IsTerminal(int(f.Fd()))
}

// readQueries joins the arguments into one query, or reads one query per
// non-blank stdin line when the only argument is "-" or there are no
// arguments and stdin is piped.
func readQueries(args []string) ([]string, error) {
	if (len(args) == 1 && args[0] == "-") || (len(args) == 0 && stdinPiped()) {
		var out []string
		sc := bufio.NewScanner(rootStdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				out = append(out, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, internalError(fmt.Errorf("reading stdin: %w", err))
		}
		return out, nil
	}

	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return nil, nil
	}
	return []string{q}, nil
}
