package main

import (
	"github.com/spf13/cobra"
)

// configFile is the optional YAML overlay shared by every subcommand.
var configFile string

// NewRootCmd creates the root command for the bastion CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bastion",
		Short: "bastion - account authentication service",
		Long: `bastion serves signup, login, password reset and email verification
over HTTP, with account lockout, CAPTCHA gating and per-client rate limits.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}
