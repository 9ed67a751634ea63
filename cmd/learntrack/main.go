// Command learntrack runs the LearnTrack authorization server, resource
// server, client server and audit consumer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "learntrack",
		Short:         "Course catalogue secured by OAuth2 and JWT",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAuthServerCmd(),
		newResourceServerCmd(),
		newClientServerCmd(),
		newAuditConsumerCmd(),
		newKeygenCmd(),
	)
	return root
}
