package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/makibytes/seltest/broker"
	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/log"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	conn       config.Connection
	configPath string
}

func (o *rootOptions) suite() (*config.Suite, error) {
	return config.Load(o.configPath)
}

func (o *rootOptions) driver() (broker.Driver, broker.Endpoint, error) {
	suite, err := o.suite()
	if err != nil {
		return broker.Driver{}, broker.Endpoint{}, err
	}
	d, err := broker.Lookup(o.conn.Broker)
	if err != nil {
		return broker.Driver{}, broker.Endpoint{}, err
	}
	return d, broker.Endpoint{Connection: o.conn, Management: suite.Management}, nil
}

func (o *rootOptions) queueFactory() QueueAdapterFactory {
	return func(ctx context.Context) (backends.QueueBackend, error) {
		d, ep, err := o.driver()
		if err != nil {
			return nil, err
		}
		return d.OpenQueue(ctx, ep)
	}
}

func (o *rootOptions) adminFactory() AdminFactory {
	return func(ctx context.Context) (backends.Admin, error) {
		d, ep, err := o.driver()
		if err != nil {
			return nil, err
		}
		return d.OpenAdmin(ctx, ep)
	}
}

// NewRootCommand builds the seltest command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{conn: config.ConnectionFromEnv()}

	rootCmd := &cobra.Command{
		Use:   "seltest",
		Short: "Message selector test harness",
		Long: `Checks that a message-driven consumer only answers messages matching its
selector. seltest provisions an inbound queue and two reply queues, sends
requests tagged with a selector property and verifies which reply queues
receive an answer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				log.IsVerbose = true
			}
		},
	}

	// Connection flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.conn.Broker, "broker", "b", opts.conn.Broker, "Broker type ("+strings.Join(broker.Names(), ", ")+")")
	flags.StringVarP(&opts.conn.Server, "server", "s", opts.conn.Server, "Server URL")
	flags.StringVarP(&opts.conn.User, "user", "u", opts.conn.User, "Username for authentication")
	flags.StringVarP(&opts.conn.Password, "password", "p", opts.conn.Password, "Password for authentication")
	flags.StringVarP(&opts.conn.ManagementURL, "management-url", "m", opts.conn.ManagementURL, "Management HTTP endpoint (Jolokia for Artemis, management API for RabbitMQ)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Suite file (YAML)")
	flags.BoolP("verbose", "v", false, "Print verbose output")

	// TLS flags
	flags.BoolVar(&opts.conn.TLS.Enabled, "tls", false, "Enable TLS connection")
	flags.StringVar(&opts.conn.TLS.CACert, "ca-cert", "", "Path to CA certificate file")
	flags.StringVar(&opts.conn.TLS.ClientCert, "cert", "", "Path to client certificate file")
	flags.StringVar(&opts.conn.TLS.ClientKey, "key-file", "", "Path to client private key file")
	flags.BoolVar(&opts.conn.TLS.Insecure, "insecure", false, "Skip TLS certificate verification")

	// Messaging commands
	queueFactory := opts.queueFactory()
	rootCmd.AddCommand(WrapQueueCommand(NewSendCommand, queueFactory))
	rootCmd.AddCommand(WrapQueueCommand(NewReceiveCommand, queueFactory))
	rootCmd.AddCommand(WrapQueueCommand(NewPeekCommand, queueFactory))
	rootCmd.AddCommand(WrapQueueCommand(NewRequestCommand, queueFactory))

	// Management commands
	adminFactory := opts.adminFactory()
	rootCmd.AddCommand(newProvisionCommand(opts))
	rootCmd.AddCommand(newPurgeCommand(opts))
	rootCmd.AddCommand(WrapAdminCommand(NewStatsCommand, adminFactory))

	// Suite commands
	rootCmd.AddCommand(newRespondCommand(opts))
	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newBrokersCommand())

	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

func newBrokersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "brokers",
		Short: "List the supported broker types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range broker.Names() {
				d, _ := broker.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", d.Name, d.Description)
			}
			return nil
		},
	}
}
