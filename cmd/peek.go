package cmd

import (
	"github.com/makibytes/seltest/broker/backends"
	"github.com/spf13/cobra"
)

// NewPeekCommand creates a peek command for queue-based brokers
func NewPeekCommand(backend backends.QueueBackend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek <queue>",
		Short: "Peek at a message in the queue without removing it (non-destructive read)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doReceive(cmd, args, backend, false)
		},
	}

	addReceiveFlags(cmd, "Number of messages to peek")

	return cmd
}
