package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/makibytes/seltest/harness"
	"github.com/makibytes/seltest/log"
	"github.com/spf13/cobra"
)

func newPurgeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge [queue]...",
		Short: "Remove all messages from queues (default: the suite's queues)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.suite()
			if err != nil {
				return err
			}
			settings := harness.SettingsFromSuite(cfg)
			if cmd.Flags().Changed("timeout") {
				settings.PurgeTimeout, _ = cmd.Flags().GetDuration("timeout")
			}

			queues := args
			if len(queues) == 0 {
				for _, q := range cfg.QueueConfigs() {
					queues = append(queues, q.Name)
				}
			}

			admin, err := opts.adminFactory()(cmd.Context())
			if err != nil {
				return err
			}
			h := harness.New(nil, admin, nil, settings)
			defer closeQuietly("management connection", h.Close)

			var failed int
			for _, queue := range queues {
				n, err := h.PurgeAll(cmd.Context(), queue)
				var timeout *harness.PurgeTimeoutError
				switch {
				case errors.As(err, &timeout):
					log.Warn("%s", err)
				case err != nil:
					log.Error("%s", err)
					failed++
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d message(s) removed\n", queue, n)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d purges failed", failed, len(queues))
			}
			return nil
		},
	}
	cmd.Flags().DurationP("timeout", "t", 10*time.Second, "Time to wait for each management reply")
	return cmd
}
