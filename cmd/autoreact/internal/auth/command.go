package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/pkg/auth"
	"github.com/tinyland-inc/autoreact/pkg/config"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "auth <provider>",
		Short:     "Store bot credentials for a platform and make it active",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{config.ProviderSlack, config.ProviderDiscord, config.ProviderTelegram},
		Example: `  autoreact auth slack
  autoreact auth telegram < token.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := internal.GetConfigPath()
			cfg, err := config.ReadConfig(path)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if err := auth.LoginPasteToken(cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			if err := config.SaveConfig(path, cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ %s credentials saved to %s\n", args[0], path)
			return nil
		},
	}
	return cmd
}
