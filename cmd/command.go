package cmd

import (
	"context"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
	"github.com/spf13/cobra"
)

// QueueAdapterFactory creates a QueueBackend when a command runs.
// This allows lazy connection: flags are parsed before anything is dialled.
type QueueAdapterFactory func(ctx context.Context) (backends.QueueBackend, error)

// AdminFactory creates a management connection when a command runs.
type AdminFactory func(ctx context.Context) (backends.Admin, error)

// WrapQueueCommand creates a command using a nil backend for flag definitions,
// then overrides RunE to lazily create the real adapter at execution time.
func WrapQueueCommand(newCmd func(backends.QueueBackend) *cobra.Command, factory QueueAdapterFactory) *cobra.Command {
	cmd := newCmd(nil)
	cmd.RunE = func(c *cobra.Command, args []string) error {
		adapter, err := factory(c.Context())
		if err != nil {
			return err
		}
		defer closeQuietly("connection", adapter.Close)
		return newCmd(adapter).RunE(c, args)
	}
	return cmd
}

// WrapAdminCommand is WrapQueueCommand for management commands.
func WrapAdminCommand(newCmd func(backends.Admin) *cobra.Command, factory AdminFactory) *cobra.Command {
	cmd := newCmd(nil)
	cmd.RunE = func(c *cobra.Command, args []string) error {
		admin, err := factory(c.Context())
		if err != nil {
			return err
		}
		defer closeQuietly("management connection", admin.Close)
		return newCmd(admin).RunE(c, args)
	}
	return cmd
}

func closeQuietly(what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Verbose("closing %s: %s", what, err)
	}
}
