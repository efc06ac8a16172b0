package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/harness"
	"github.com/makibytes/seltest/harness/scenario"
	"github.com/spf13/cobra"
)

func newProvisionCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or remove queues through the broker's management interface",
	}
	cmd.AddCommand(newProvisionCreateCommand(opts))
	cmd.AddCommand(newProvisionRemoveCommand(opts))
	return cmd
}

func newProvisionCreateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [name[=lookup]]...",
		Short: "Create queues (default: the suite's queues)",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := provisionSpecs(opts, args)
			if err != nil {
				return err
			}
			durable, _ := cmd.Flags().GetBool("durable")
			for i := range specs {
				specs[i].Durable = specs[i].Durable || durable
			}

			p := harness.NewProvisioner(opts.adminOpener(), harness.NewDirectory())
			if err := p.Create(cmd.Context(), specs...); err != nil {
				return err
			}
			for _, spec := range specs {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", harness.QueueRef{Name: spec.Name, LookupPath: spec.LookupPath})
			}
			return nil
		},
	}
	cmd.Flags().Bool("durable", false, "Create durable queues")
	return cmd
}

func newProvisionRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [name]...",
		Short: "Remove queues (default: the suite's queues)",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := provisionSpecs(opts, args)
			if err != nil {
				return err
			}
			names := make([]string, len(specs))
			for i, spec := range specs {
				names[i] = spec.Name
			}

			p := harness.NewProvisioner(opts.adminOpener(), harness.NewDirectory())
			p.Remove(cmd.Context(), names...)
			return nil
		},
	}
}

// provisionSpecs turns name[=lookup] arguments into queue specs, or
// returns the suite's queues when there are none.
func provisionSpecs(opts *rootOptions, args []string) ([]backends.QueueSpec, error) {
	if len(args) == 0 {
		cfg, err := opts.suite()
		if err != nil {
			return nil, err
		}
		return scenario.NewSuite(cfg, nil, nil).Specs(), nil
	}

	specs := make([]backends.QueueSpec, 0, len(args))
	for _, arg := range args {
		name, lookup, _ := strings.Cut(arg, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid queue: %q", arg)
		}
		specs = append(specs, backends.QueueSpec{Name: name, LookupPath: lookup})
	}
	return specs, nil
}

func (o *rootOptions) adminOpener() harness.AdminOpener {
	factory := o.adminFactory()
	return func(ctx context.Context) (backends.Admin, error) {
		return factory(ctx)
	}
}
