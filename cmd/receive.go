package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
	"github.com/spf13/cobra"
)

// NewReceiveCommand creates a receive command for queue-based brokers
func NewReceiveCommand(backend backends.QueueBackend) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "receive <queue>",
		Aliases: []string{"get"},
		Short:   "Receive a message from a queue (destructive read)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doReceive(cmd, args, backend, true)
		},
	}

	addReceiveFlags(cmd, "Number of messages to receive")
	cmd.Flags().BoolP("quiet", "q", false, "Quiet about properties, show data only")

	return cmd
}

func addReceiveFlags(cmd *cobra.Command, countUsage string) {
	cmd.Flags().Float32P("timeout", "t", 0.1, "Seconds to wait")
	cmd.Flags().BoolP("wait", "w", false, "Wait (endless) for a message to arrive")
	cmd.Flags().IntP("count", "n", 1, countUsage)
	cmd.Flags().BoolP("json", "J", false, "Output messages as JSON")
	cmd.Flags().StringP("selector", "S", "", "JMS message selector (e.g. \"color = 'red'\")")
}

func doReceive(cmd *cobra.Command, args []string, backend backends.QueueBackend, acknowledge bool) error {
	timeout, _ := cmd.Flags().GetFloat32("timeout")
	wait, _ := cmd.Flags().GetBool("wait")
	count, _ := cmd.Flags().GetInt("count")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	selector, _ := cmd.Flags().GetString("selector")

	// peek has no quiet flag and always shows properties
	quiet := false
	if cmd.Flags().Lookup("quiet") != nil {
		quiet, _ = cmd.Flags().GetBool("quiet")
	}

	opts := backends.ReceiveOptions{
		Queue:       args[0],
		Timeout:     seconds(timeout),
		Wait:        wait,
		Acknowledge: acknowledge,
		Selector:    selector,
	}

	out := cmd.OutOrStdout()
	for received := 0; received < count; received++ {
		message, err := backend.Receive(cmd.Context(), opts)
		if err != nil {
			return err
		}
		if message == nil {
			if received == 0 {
				log.Verbose("no message available on %s", opts.Queue)
			}
			return nil
		}

		if jsonOutput {
			err = displayMessageJSON(out, message)
		} else {
			err = displayMessage(out, message, log.IsVerbose, !quiet)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func seconds(s float32) time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

func displayMessage(out io.Writer, message *backends.Message, withHeader, withProps bool) error {
	if withHeader {
		for _, line := range headerLines(message) {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	if withProps && len(message.Properties) > 0 {
		fmt.Fprintf(os.Stderr, "Properties: %s\n", formatProperties(message.Properties))
	}

	fmt.Fprint(out, string(message.Data))
	if log.IsStdout || out != os.Stdout {
		fmt.Fprintln(out)
	}

	return nil
}

func headerLines(message *backends.Message) []string {
	var lines []string
	add := func(k, v string) {
		if v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	add("MessageID", message.MessageID)
	add("CorrelationID", message.CorrelationID)
	add("ReplyTo", message.ReplyTo)
	add("ContentType", message.ContentType)
	keys := make([]string, 0, len(message.InternalMetadata))
	for k := range message.InternalMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, message.InternalMetadata[k]))
	}
	return lines
}

func formatProperties(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, props[k])
	}
	return strings.Join(pairs, ",")
}

// displayMessageJSON outputs the message as a JSON object
func displayMessageJSON(out io.Writer, message *backends.Message) error {
	output := map[string]any{
		"data": string(message.Data),
	}
	if message.MessageID != "" {
		output["messageId"] = message.MessageID
	}
	if message.CorrelationID != "" {
		output["correlationId"] = message.CorrelationID
	}
	if message.ReplyTo != "" {
		output["replyTo"] = message.ReplyTo
	}
	if message.ContentType != "" {
		output["contentType"] = message.ContentType
	}
	if message.Priority != 0 {
		output["priority"] = message.Priority
	}
	if message.Persistent {
		output["persistent"] = message.Persistent
	}
	if len(message.Properties) > 0 {
		output["properties"] = message.Properties
	}
	if len(message.InternalMetadata) > 0 {
		output["metadata"] = message.InternalMetadata
	}

	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	fmt.Fprintln(out, string(data))
	return nil
}
