package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tlee933/rai/internal/mcppool"
	"github.com/tlee933/rai/internal/response"
)

func (a *app) callCommand() *cobra.Command {
	var restart bool
	cmd := &cobra.Command{
		Use:   "call <tool> [key=value... | JSON object]",
		Short: "Call one tool directly, bypassing the classifier",
		Example: `  rai call get_vram
  rai call read_file path=/etc/os-release
  rai call --restart get_gpu_stats`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseCallArgs(args[1:])
			if err != nil {
				return usageError(err)
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool := startPool(ctx, cfg, a.log)
			defer stopPool(pool, a.log)

			return a.callTool(ctx, pool, args[0], toolArgs, restart)
		},
	}
	cmd.Flags().BoolVar(&restart, "restart", false, "restart the server once if its connection was lost, then retry")
	return cmd
}

func (a *app) callTool(ctx context.Context, pool toolPool, tool string, args map[string]any, restart bool) error {
	server, res, err := pool.CallToolByName(ctx, tool, args)

	var disconnected *mcppool.DisconnectedError
	if restart && errors.As(err, &disconnected) {
		a.log.Info("restarting tool server", zap.String("server", disconnected.Server), zap.Error(err))
		if rerr := pool.Restart(ctx, disconnected.Server); rerr != nil {
			return &exitError{code: ExitToolErr, err: fmt.Errorf("%w (restart failed: %v)", err, rerr)}
		}
		server, res, err = pool.CallToolByName(ctx, tool, args)
	}

	var unknown *mcppool.UnknownToolError
	switch {
	case errors.As(err, &unknown):
		return usageErrorf("no server provides %s", unknown.Tool)
	case err != nil:
		return &exitError{code: ExitToolErr, err: err}
	}

	fmt.Fprint(rootStdout, response.EnsureTrailingNewline(response.Text(res.Content)))
	if res.IsError {
		return &exitError{code: ExitToolErr, err: fmt.Errorf("%s/%s reported an error", server, tool)}
	}
	return nil
}

// parseCallArgs accepts key=value pairs or a single JSON object. Values stay
// strings; a repeated key collects its values into a list.
func parseCallArgs(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		if err := json.Unmarshal([]byte(args[0]), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		return out, nil
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		switch prev := out[key].(type) {
		case nil:
			out[key] = value
		case []any:
			out[key] = append(prev, value)
		default:
			out[key] = []any{prev, value}
		}
	}
	return out, nil
}
