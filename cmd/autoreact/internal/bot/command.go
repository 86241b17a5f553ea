package bot

import (
	"github.com/spf13/cobra"
)

func NewBotCommand() *cobra.Command {
	var debug bool
	var seedExamples bool
	var autoStart bool

	cmd := &cobra.Command{
		Use:     "bot",
		Aliases: []string{"b"},
		Short:   "Run the interactive auto-react console",
		Args:    cobra.NoArgs,
		Example: `  autoreact bot
  autoreact bot --seed-examples
  autoreact bot --start --debug`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return botCmd(debug, seedExamples, autoStart)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&seedExamples, "seed-examples", false, "Add the starter rules when no rules exist")
	cmd.Flags().BoolVar(&autoStart, "start", false, "Start reacting as soon as the console opens")

	return cmd
}
