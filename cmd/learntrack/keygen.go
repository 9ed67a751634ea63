package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learntrack/learntrack/internal/token"
)

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Write a new RSA signing key for the authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := token.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := token.WriteKeyFile(out, kp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (kid %s)\n", out, kp.KeyID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "signing-key.pem", "destination of the PEM encoded key")
	return cmd
}
