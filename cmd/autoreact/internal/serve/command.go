package serve

import (
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	var debug bool
	var seedExamples bool

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway", "g"},
		Short:   "Start the HTTP gateway and event push",
		Args:    cobra.NoArgs,
		Example: `  autoreact serve
  autoreact serve --debug
  AUTOREACT_GATEWAY_PORT=8080 autoreact serve`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return serveCmd(debug, seedExamples)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&seedExamples, "seed-examples", false, "Add the starter rules when no rules exist")

	return cmd
}
