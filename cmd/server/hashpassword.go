package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bastion/internal/auth/password"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// NewHashPasswordCmd creates the hash-password subcommand, used to seed
// accounts by hand without the password ever reaching shell history.
func NewHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from the terminal and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			first, err := promptPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			second, err := promptPassword(cmd, "Confirm password: ")
			if err != nil {
				return err
			}
			if first != second {
				return errors.New("passwords do not match")
			}
			if !password.DefaultPolicy().IsStrong(first) {
				return errors.New("password must be at least 8 characters with upper, lower case letters and a digit")
			}

			hash, err := password.NewHasher(cost).Hash(first)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}

func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	cmd.PrintErr(prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	cmd.PrintErrln()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
