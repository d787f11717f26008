// Package cli implements the rai command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tlee933/rai/internal/config"
	"github.com/tlee933/rai/internal/logging"
	"github.com/tlee933/rai/internal/paths"
)

// app holds global flag values and what is built from them.
type app struct {
	configPath string
	verbose    bool
	log        *zap.Logger
}

// Run is the main CLI entry point. Returns an exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{log: zap.NewNop()}
	root := a.rootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	_ = a.log.Sync()
	if err == nil {
		return ExitOK
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintf(rootStderr, "rai: %s\n", msg)
	}
	return exitCodeFor(err)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "rai [query...]",
		Short: "Answer natural-language system questions with local tool servers",
		Long: `rai classifies a query against a fixed table of patterns. Recognized
queries are answered by a tool server (GPU, files, systemd, rpm-ostree,
Universal Blue); anything else goes to a local LLM.

Pass "-" to read one query per line from stdin.`,
		Example: `  rai show gpu vram
  rai read /etc/os-release
  echo "check updates" | rai -`,
		Version:       buildVersion,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			a.log = logging.New(rootStderr, a.verbose)
		},
		RunE: a.runQuery,
	}
	root.SetOut(rootStdout)
	root.SetErr(rootStderr)
	root.SetIn(rootStdin)
	root.SetVersionTemplate("rai {{.Version}}\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	// Flags after the first word belong to the query ("git commit -m ...").
	root.Flags().SetInterspersed(false)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+paths.ConfigFile()+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		a.toolsCommand(),
		a.callCommand(),
		a.classifyCommand(),
		a.serveCommand(),
		a.configCommand(),
		a.doctorCommand(),
	)
	return root
}

// usageArgs turns argument validation failures into usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func (a *app) resolvedConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return paths.ConfigFile()
}

// loadConfig reads and validates the config. A file named with --config
// must exist; the default location falls back to built-in servers.
func (a *app) loadConfig() (*config.Config, error) {
	path := a.resolvedConfigPath()
	if a.configPath != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, usageErrorf("config file %s does not exist", path)
		}
	}

	load := config.Load
	if a.configPath != "" {
		load = func() (*config.Config, error) { return config.LoadFrom(path) }
	}
	cfg, err := load()
	if err != nil {
		return nil, internalError(err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, usageErrorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
