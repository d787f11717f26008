package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tlee933/rai/internal/toolserver"
)

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "serve <catalog>",
		Short:     "Run a built-in tool server on stdin and stdout",
		Long:      "Run a built-in tool server on stdin and stdout. Catalogs: " + strings.Join(toolserver.Names(), ", ") + ".",
		Args:      usageArgs(cobra.ExactArgs(1)),
		ValidArgs: toolserver.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, ok := toolserver.Lookup(args[0])
			if !ok {
				return usageErrorf("unknown catalog %q%s; available: %s",
					args[0], didYouMean(args[0], toolserver.Names()), strings.Join(toolserver.Names(), ", "))
			}
			srv := toolserver.New(catalog, a.log, toolserver.WithVersion(buildVersion))
			if err := srv.Serve(cmd.Context(), rootStdin, rootStdout); err != nil {
				return internalError(err)
			}
			return nil
		},
	}
}
