package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tlee933/rai/internal/intent"
)

type classifyResult struct {
	Query    string            `json:"query" yaml:"query"`
	Route    string            `json:"route" yaml:"route"`
	Category string            `json:"category,omitempty" yaml:"category,omitempty"`
	Action   string            `json:"action,omitempty" yaml:"action,omitempty"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

func (a *app) classifyCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "classify <query...>",
		Short: "Show how a query would be classified, without running it",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			mode, err := parseOutputMode(format)
			if err != nil {
				return err
			}
			res := classify(intent.New(), strings.Join(args, " "))
			return writeClassifyResult(res, mode)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text, json or yaml")
	return cmd
}

func classify(c *intent.Classifier, query string) classifyResult {
	res := classifyResult{Query: strings.TrimSpace(query), Route: "llm"}
	in, ok := c.Classify(query)
	if !ok {
		return res
	}
	res.Route = "tool"
	res.Category = string(in.Category)
	res.Action = in.Action
	if len(in.Params) > 0 {
		res.Params = in.Params
	}
	return res
}

func writeClassifyResult(res classifyResult, mode outputMode) error {
	switch mode {
	case outputModeJSON:
		data, err := json.Marshal(res)
		if err != nil {
			return internalError(err)
		}
		fmt.Fprintln(rootStdout, string(data))
	case outputModeYAML:
		data, err := yaml.Marshal(res)
		if err != nil {
			return internalError(err)
		}
		fmt.Fprint(rootStdout, string(data))
	default:
		if res.Route == "llm" {
			fmt.Fprintln(rootStdout, "llm")
			return nil
		}
		line := res.Category + "/" + res.Action
		keys := make([]string, 0, len(res.Params))
		for k := range res.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += " " + k + "=" + res.Params[k]
		}
		fmt.Fprintln(rootStdout, line)
	}
	return nil
}
