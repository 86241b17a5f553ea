// AutoReact - rule-driven emoji reactions for chat platforms
// Inspired by and based on picoclaw: https://github.com/sipeed/picoclaw
// License: MIT
//
// Copyright (c) 2026 AutoReact contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal/auth"
	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal/bot"
	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal/rules"
	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal/serve"
	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal/version"
)

func NewAutoreactCommand() *cobra.Command {
	short := fmt.Sprintf("%s autoreact - Rule-driven auto reactions v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:          "autoreact",
		Short:        short,
		Example:      "autoreact bot --seed-examples",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&internal.ConfigPath, "config", "c", "",
		"Config file (default: $AUTOREACT_CONFIG or ~/.autoreact/config.json)")

	cmd.AddCommand(
		auth.NewAuthCommand(),
		bot.NewBotCommand(),
		serve.NewServeCommand(),
		rules.NewRulesCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewAutoreactCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
