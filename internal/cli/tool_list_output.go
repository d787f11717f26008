package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tlee933/rai/internal/mcppool"
)

type toolListEntry struct {
	Server      string `json:"server" yaml:"server"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (a *app) toolsCommand() *cobra.Command {
	var format, server string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools each running server offers",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := parseOutputMode(format)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if server != "" {
				if _, ok := cfg.Server(server); !ok {
					return usageErrorf("unknown server: %s%s", server, didYouMean(server, cfg.ServerNames()))
				}
			}

			pool := startPool(cmd.Context(), cfg, a.log)
			defer stopPool(pool, a.log)

			entries := toolListEntries(pool.ToolInfo(), server)
			return writeToolList(rootStdout, entries, mode)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text, json or yaml")
	cmd.Flags().StringVar(&server, "server", "", "only list tools of this server")
	return cmd
}

// toolListEntries keeps registration order across servers and sorts tools
// by name within each server.
func toolListEntries(infos []mcppool.ToolInfo, server string) []toolListEntry {
	order := make(map[string]int)
	out := make([]toolListEntry, 0, len(infos))
	for _, info := range infos {
		if server != "" && info.Server != server {
			continue
		}
		name := strings.TrimSpace(info.Name)
		if name == "" {
			continue
		}
		if _, ok := order[info.Server]; !ok {
			order[info.Server] = len(order)
		}
		out = append(out, toolListEntry{
			Server:      info.Server,
			Name:        name,
			Description: strings.TrimSpace(info.Description),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return order[out[i].Server] < order[out[j].Server]
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func writeToolList(w io.Writer, entries []toolListEntry, mode outputMode) error {
	switch mode {
	case outputModeJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return internalError(fmt.Errorf("writing tool list output: %w", err))
		}
		return nil
	case outputModeYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return internalError(fmt.Errorf("writing tool list output: %w", err))
		}
		if err := enc.Close(); err != nil {
			return internalError(fmt.Errorf("writing tool list output: %w", err))
		}
		return nil
	default:
		return writeToolListText(w, entries)
	}
}

func writeToolListText(w io.Writer, entries []toolListEntry) error {
	current := ""
	for _, entry := range entries {
		if entry.Server != current {
			current = entry.Server
			if _, err := io.WriteString(w, current+"\n"); err != nil {
				return internalError(fmt.Errorf("writing tool list output: %w", err))
			}
		}
		line := "  " + entry.Name
		if entry.Description != "" {
			line += "\t" + entry.Description
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return internalError(fmt.Errorf("writing tool list output: %w", err))
		}
	}
	return nil
}
