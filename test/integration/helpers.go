//go:build integration

package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/harness"
	"github.com/makibytes/seltest/harness/scenario"
	"github.com/makibytes/seltest/responder"
)

// WaitForBroker retries check until it returns nil or timeout is reached.
// Useful when a broker's TCP port is open but the service isn't fully ready.
func WaitForBroker(check func() error, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = check(); lastErr == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("broker not ready after %s: %w", timeout, lastErr)
}

// Opener opens one connection of a driver under test
type Opener struct {
	Queue func(ctx context.Context) (backends.QueueBackend, error)
	Admin func(ctx context.Context) (backends.Admin, error)
}

// Suite returns the default suite with queue names prefixed so that tests
// sharing a broker do not collide.
func Suite(prefix string) *config.Suite {
	s := config.DefaultSuite()
	s.Queues.Inbound.Name = prefix + "." + "inbound"
	s.Queues.ReplyA.Name = prefix + "." + "replyA"
	s.Queues.ReplyB.Name = prefix + "." + "replyB"
	s.ConsumerSelector = fmt.Sprintf("%s = '%s'", s.SelectorProperty, s.MatchingValue)
	return s
}

// RunScenarios provisions the suite's queues, starts a responder with the
// suite's selector on its own connection, runs both scenarios and tears
// everything down again.
func RunScenarios(ctx context.Context, open Opener, cfg *config.Suite) (scenario.Report, error) {
	dir := harness.NewDirectory()
	suite := scenario.NewSuite(cfg, harness.NewProvisioner(open.Admin, dir), dir)
	queues, err := suite.Setup(ctx)
	if err != nil {
		return scenario.Report{}, err
	}
	defer suite.Teardown(context.WithoutCancel(ctx))

	consumer, err := open.Queue(ctx)
	if err != nil {
		return scenario.Report{}, err
	}
	defer consumer.Close()

	r, err := responder.New(consumer, responder.Options{
		Queue:        queues.Inbound.Name,
		Selector:     cfg.ConsumerSelector,
		PollInterval: 200 * time.Millisecond,
	})
	if err != nil {
		return scenario.Report{}, err
	}
	if err := r.Start(ctx); err != nil {
		return scenario.Report{}, err
	}
	defer r.Stop()

	backend, err := open.Queue(ctx)
	if err != nil {
		return scenario.Report{}, err
	}
	admin, err := open.Admin(ctx)
	if err != nil {
		backend.Close()
		return scenario.Report{}, err
	}
	h := harness.New(backend, admin, dir, harness.SettingsFromSuite(cfg))
	defer h.Close()

	return scenario.NewRunner(h, queues).Run(ctx, suite.Scenarios(queues)...), nil
}
