package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tlee933/rai/internal/bootstrap"
	"github.com/tlee933/rai/internal/toolserver"
)

// lookPath is swapped in tests.
var lookPath bootstrap.LookPathFunc = bootstrap.LookPath

func (a *app) doctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that configured servers and built-in tools are installed",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(rootStdout, 0, 4, 2, ' ', 0)
			failed := false

			fmt.Fprintln(tw, "servers")
			for _, srv := range cfg.Servers {
				status := "ok"
				if err := bootstrap.CheckWithLookup(srv, lookPath); err != nil {
					var missing *bootstrap.MissingRuntimeError
					if errors.As(err, &missing) {
						status = "missing " + missing.Runtime
					} else {
						status = err.Error()
					}
					if srv.Optional {
						status += " (optional)"
					} else {
						failed = true
					}
				}
				fmt.Fprintf(tw, "  %s\t%s\n", srv.Name, status)
			}

			fmt.Fprintln(tw, "catalogs")
			for _, name := range toolserver.Names() {
				catalog, _ := toolserver.Lookup(name)
				status := "ok"
				if missing := bootstrap.MissingCommands(catalog, lookPath); len(missing) > 0 {
					status = "missing " + strings.Join(missing, ", ")
				}
				fmt.Fprintf(tw, "  %s\t%s\n", name, status)
			}
			if err := tw.Flush(); err != nil {
				return internalError(err)
			}

			if failed {
				return &exitError{code: ExitToolErr}
			}
			return nil
		},
	}
}
