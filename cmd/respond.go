package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/makibytes/seltest/log"
	"github.com/makibytes/seltest/responder"
	"github.com/spf13/cobra"
)

func newRespondCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Act as the selective consumer: answer matching messages until interrupted",
		Long: `Listens on the inbound queue and replies to every message that satisfies
the selector, on the queue named by the message's reply-to. Brokers that
support selectors filter on the broker; for the others the selector is
evaluated here and non-matching messages are dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.suite()
			if err != nil {
				return err
			}
			queue, _ := cmd.Flags().GetString("queue")
			if queue == "" {
				queue = cfg.Queues.Inbound.Name
			}
			sel, _ := cmd.Flags().GetString("selector")
			if !cmd.Flags().Changed("selector") {
				sel = cfg.ConsumerSelector
			}
			prefix, _ := cmd.Flags().GetString("reply-prefix")

			backend, err := opts.queueFactory()(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly("connection", backend.Close)

			r, err := responder.New(backend, responder.Options{Queue: queue, Selector: sel, ReplyPrefix: prefix})
			if err != nil {
				return err
			}
			log.Verbose("responding on %s with selector %q", queue, sel)
			r.Serve(cmd.Context())

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d, dropped %d\n",
				color.New(color.FgHiGreen).Sprint("answered"), r.Handled(), r.Dropped())
			return nil
		},
	}
	cmd.Flags().StringP("queue", "q", "", "Queue to consume from (default: the suite's inbound queue)")
	cmd.Flags().StringP("selector", "S", "", "Message selector (default: the suite's consumer selector)")
	cmd.Flags().String("reply-prefix", responder.DefaultReplyPrefix, "Text put in front of the request in every reply")
	return cmd
}
