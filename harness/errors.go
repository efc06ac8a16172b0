package harness

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownLookup is returned when a lookup path has not been bound.
var ErrUnknownLookup = errors.New("unknown lookup path")

// ProvisioningError reports a queue that could not be created, or an admin
// connection that could not be established (Queue is empty then).
type ProvisioningError struct {
	Queue string
	Op    string
	Err   error
}

func (e *ProvisioningError) Error() string {
	if e.Queue == "" {
		return fmt.Sprintf("provisioning: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provisioning %s: %s: %v", e.Queue, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// SendError reports a message the broker did not accept.
type SendError struct {
	Queue string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending to %s: %v", e.Queue, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// PurgeTimeoutError reports a purge whose management reply did not arrive
// in time. Callers log it and carry on.
type PurgeTimeoutError struct {
	Queue   string
	Timeout time.Duration
	Err     error
}

func (e *PurgeTimeoutError) Error() string {
	return fmt.Sprintf("purging %s: no reply within %s", e.Queue, e.Timeout)
}

func (e *PurgeTimeoutError) Unwrap() error { return e.Err }
