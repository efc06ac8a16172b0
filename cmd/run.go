package cmd

import (
	"context"
	"fmt"

	"github.com/makibytes/seltest/harness"
	"github.com/makibytes/seltest/harness/scenario"
	"github.com/makibytes/seltest/log"
	"github.com/makibytes/seltest/responder"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the message selector scenarios",
		Long: `Provisions the suite's queues, runs testMessageSelectors and
retestMessageSelectors against the consumer listening on the inbound
queue and removes the queues again.

Use --with-responder to start a built-in consumer with the suite's
selector instead of testing a deployed one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			withResponder, _ := cmd.Flags().GetBool("with-responder")
			noProvision, _ := cmd.Flags().GetBool("no-provision")
			return doRun(cmd, opts, withResponder, noProvision)
		},
	}
	cmd.Flags().Bool("with-responder", false, "Start a built-in consumer using the suite's selector")
	cmd.Flags().Bool("no-provision", false, "Use existing queues and leave them in place")
	return cmd
}

func doRun(cmd *cobra.Command, opts *rootOptions, withResponder, noProvision bool) error {
	ctx := cmd.Context()
	cfg, err := opts.suite()
	if err != nil {
		return err
	}

	dir := harness.NewDirectory()
	suite := scenario.NewSuite(cfg, harness.NewProvisioner(opts.adminOpener(), dir), dir)

	var queues scenario.Queues
	if noProvision {
		suite.Bind()
		queues, err = suite.Resolve()
	} else {
		queues, err = suite.Setup(ctx)
		defer suite.Teardown(context.WithoutCancel(ctx))
	}
	if err != nil {
		return err
	}

	backend, err := opts.queueFactory()(ctx)
	if err != nil {
		return err
	}
	admin, err := opts.adminFactory()(ctx)
	if err != nil {
		closeQuietly("connection", backend.Close)
		return err
	}
	h := harness.New(backend, admin, dir, harness.SettingsFromSuite(cfg))
	defer closeQuietly("harness", h.Close)

	if withResponder {
		consumer, err := opts.queueFactory()(ctx)
		if err != nil {
			return err
		}
		r, err := responder.New(consumer, responder.Options{
			Queue:    queues.Inbound.Name,
			Selector: cfg.ConsumerSelector,
		})
		if err != nil {
			closeQuietly("responder connection", consumer.Close)
			return err
		}
		if err := r.Start(ctx); err != nil {
			closeQuietly("responder connection", consumer.Close)
			return err
		}
		// deferred calls run in reverse: stop the responder, then close its connection
		defer closeQuietly("responder connection", consumer.Close)
		defer r.Stop()
		log.Verbose("responder started on %s with selector %q", queues.Inbound.Name, cfg.ConsumerSelector)
	}

	report := scenario.NewRunner(h, queues).Run(ctx, suite.Scenarios(queues)...)
	report.Render(cmd.OutOrStdout())
	if !report.Passed() {
		return fmt.Errorf("%d of %d scenarios failed", report.Failed(), len(report.Results))
	}
	return nil
}
