package cmd

import (
	"fmt"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/log"
	"github.com/spf13/cobra"
)

// DefaultReplyQueue is used by request when no --replyto is given
const DefaultReplyQueue = "seltest.reply"

// NewRequestCommand creates a request-reply command for queue-based brokers
func NewRequestCommand(backend backends.QueueBackend) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <queue> [message]",
		Short: "Send a message and wait for a reply (request-reply pattern)",
		Long: `Sends a message to the specified queue with a reply-to address,
then waits for a response on the reply queue.

Combined with --selector-value this is a single manual selector check:
a consumer whose selector matches the value answers, any other stays silent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRequest(cmd, args, backend)
		},
	}

	cmd.Flags().StringP("contenttype", "T", "text/plain", "MIME type of message data")
	cmd.Flags().StringP("correlationid", "C", "", "Correlation ID for request/response")
	cmd.Flags().StringP("messageid", "I", "", "Message ID")
	cmd.Flags().IntP("priority", "Y", 4, "Priority of the message (0-9)")
	cmd.Flags().BoolP("persistent", "d", false, "Make message persistent")
	cmd.Flags().StringP("replyto", "R", DefaultReplyQueue, "Reply queue")
	cmd.Flags().StringSliceP("property", "P", []string{}, "Message properties in key=value format")
	cmd.Flags().StringP("selector-value", "V", "", "Value of the selector property")
	cmd.Flags().String("selector-property", config.DefaultSelectorProperty, "Name of the selector property")
	cmd.Flags().Float32P("timeout", "t", 30, "Seconds to wait for reply")
	cmd.Flags().BoolP("quiet", "q", false, "Quiet about properties, show data only")
	cmd.Flags().BoolP("json", "J", false, "Output reply as JSON")

	return cmd
}

func doRequest(cmd *cobra.Command, args []string, backend backends.QueueBackend) error {
	contenttype, _ := cmd.Flags().GetString("contenttype")
	correlationid, _ := cmd.Flags().GetString("correlationid")
	messageid, _ := cmd.Flags().GetString("messageid")
	priority, _ := cmd.Flags().GetInt("priority")
	persistent, _ := cmd.Flags().GetBool("persistent")
	replyto, _ := cmd.Flags().GetString("replyto")
	timeout, _ := cmd.Flags().GetFloat32("timeout")
	quiet, _ := cmd.Flags().GetBool("quiet")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	properties, err := parseProperties(cmd)
	if err != nil {
		return err
	}

	data, err := messageData(args)
	if err != nil {
		return err
	}

	if replyto == "" {
		replyto = DefaultReplyQueue
	}

	// Set correlation ID if not provided
	if correlationid == "" && messageid != "" {
		correlationid = messageid
	}

	sendOpts := backends.SendOptions{
		Queue:         args[0],
		Message:       data,
		Properties:    properties,
		MessageID:     messageid,
		CorrelationID: correlationid,
		ReplyTo:       replyto,
		ContentType:   contenttype,
		Priority:      priority,
		Persistent:    persistent,
	}

	log.Verbose("sending request to %s, expecting reply on %s...", args[0], replyto)
	if err := backend.Send(cmd.Context(), sendOpts); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	receiveOpts := backends.ReceiveOptions{
		Queue:       replyto,
		Timeout:     seconds(timeout),
		Acknowledge: true,
	}

	log.Verbose("waiting for reply on %s (timeout: %.1fs)...", replyto, timeout)
	message, err := backend.Receive(cmd.Context(), receiveOpts)
	if err != nil {
		return fmt.Errorf("failed to receive reply: %w", err)
	}
	if message == nil {
		return fmt.Errorf("no reply received within %.1f seconds", timeout)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return displayMessageJSON(out, message)
	}
	return displayMessage(out, message, log.IsVerbose, !quiet)
}
