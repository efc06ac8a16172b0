package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/makibytes/seltest/broker/backends"
)

func TestRequestCommand_BasicRequestReply(t *testing.T) {
	mock := &mockQueueBackend{receiveMsg: &backends.Message{Data: []byte("reply-data")}}

	output, err := executeWithOutput(t, mock, NewRequestCommand, "request-queue", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.sendCount != 1 {
		t.Errorf("sendCount = %d, want 1", mock.sendCount)
	}
	if mock.lastSendOpts.Queue != "request-queue" {
		t.Errorf("queue = %q, want %q", mock.lastSendOpts.Queue, "request-queue")
	}
	if !bytes.Equal(mock.lastSendOpts.Message, []byte("hello")) {
		t.Errorf("message = %q, want %q", mock.lastSendOpts.Message, "hello")
	}
	if mock.lastSendOpts.ReplyTo != DefaultReplyQueue {
		t.Errorf("replyTo = %q, want %q", mock.lastSendOpts.ReplyTo, DefaultReplyQueue)
	}
	if mock.lastReceiveOpts.Queue != DefaultReplyQueue {
		t.Errorf("receive queue = %q, want %q", mock.lastReceiveOpts.Queue, DefaultReplyQueue)
	}
	if !mock.lastReceiveOpts.Acknowledge {
		t.Error("reply receive should acknowledge")
	}
	if mock.lastReceiveOpts.Timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s", mock.lastReceiveOpts.Timeout)
	}
	if output != "reply-data\n" {
		t.Errorf("output = %q, want %q", output, "reply-data\n")
	}
}

func TestRequestCommand_CustomReplyTo(t *testing.T) {
	mock := &mockQueueBackend{receiveMsg: &backends.Message{Data: []byte("custom reply")}}

	if _, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi", "-R", "my-replies"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.lastSendOpts.ReplyTo != "my-replies" {
		t.Errorf("replyTo = %q, want %q", mock.lastSendOpts.ReplyTo, "my-replies")
	}
	if mock.lastReceiveOpts.Queue != "my-replies" {
		t.Errorf("receive queue = %q, want %q", mock.lastReceiveOpts.Queue, "my-replies")
	}
}

func TestRequestCommand_SelectorValue(t *testing.T) {
	mock := &mockQueueBackend{receiveMsg: &backends.Message{Data: []byte("ok")}}

	if _, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi", "-V", "Version 1.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := mock.lastSendOpts.Properties["MessageFormat"]; got != "Version 1.0" {
		t.Errorf("MessageFormat = %v, want %q", got, "Version 1.0")
	}
}

func TestRequestCommand_JSONOutput(t *testing.T) {
	mock := &mockQueueBackend{receiveMsg: &backends.Message{Data: []byte("r"), CorrelationID: "c-1"}}

	output, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi", "-J")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, `"correlationId":"c-1"`) {
		t.Errorf("output = %q, want correlationId", output)
	}
}

func TestRequestCommand_NoReplyIsAnError(t *testing.T) {
	mock := &mockQueueBackend{}

	_, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi", "-t", "0.5")
	if err == nil {
		t.Fatal("expected error when no reply arrives, got nil")
	}
	if !strings.Contains(err.Error(), "no reply received within 0.5 seconds") {
		t.Errorf("error = %q", err)
	}
}

func TestRequestCommand_ReceiveFailure(t *testing.T) {
	mock := &mockQueueBackend{receiveErr: errors.New("session closed")}

	if _, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRequestCommand_SendFailure(t *testing.T) {
	mock := &mockQueueBackend{sendErr: errors.New("broker down")}

	_, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if mock.receiveCount != 0 {
		t.Errorf("receiveCount = %d, want 0 after failed send", mock.receiveCount)
	}
}

func TestRequestCommand_CorrelationFromMessageID(t *testing.T) {
	mock := &mockQueueBackend{receiveMsg: &backends.Message{Data: []byte("ok")}}

	if _, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi", "-I", "msg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.lastSendOpts.CorrelationID != "msg-1" {
		t.Errorf("correlationid = %q, want %q", mock.lastSendOpts.CorrelationID, "msg-1")
	}
}

func TestRequestCommand_InvalidProperty(t *testing.T) {
	mock := &mockQueueBackend{}

	if _, err := executeWithOutput(t, mock, NewRequestCommand, "q", "hi", "-P", "nope"); err == nil {
		t.Fatal("expected error for invalid property, got nil")
	}
	if mock.sendCount != 0 {
		t.Errorf("sendCount = %d, want 0", mock.sendCount)
	}
}
