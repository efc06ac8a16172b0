package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/harness"
	"github.com/makibytes/seltest/log"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Step    Step
	Reply   *backends.Message
	Failure string
	Elapsed time.Duration
}

// Result is the outcome of one scenario. Failure holds the first failed
// expectation; Err holds an error that stopped the scenario.
type Result struct {
	Scenario string
	Steps    []StepResult
	Failure  string
	Err      error
	Duration time.Duration
}

func (r Result) Passed() bool { return r.Failure == "" && r.Err == nil }

// Runner executes scenarios against a harness. Each scenario starts and
// ends with a purge of the inbound and both reply queues.
type Runner struct {
	h      *harness.Harness
	queues Queues
}

func NewRunner(h *harness.Harness, queues Queues) *Runner {
	return &Runner{h: h, queues: queues}
}

// Run executes scenarios in order.
func (r *Runner) Run(ctx context.Context, scenarios ...Scenario) Report {
	start := time.Now()
	report := Report{}
	for _, s := range scenarios {
		report.Results = append(report.Results, r.RunScenario(ctx, s))
	}
	report.Duration = time.Since(start)
	return report
}

// RunScenario executes one scenario. It stops at the first step whose
// expectation fails, like an assertion would.
func (r *Runner) RunScenario(ctx context.Context, s Scenario) Result {
	start := time.Now()
	result := Result{Scenario: s.Name}
	log.Verbose("▶ %s", s.Name)

	r.h.PurgeQueues(ctx, r.queues.All()...)
	defer func() {
		r.h.PurgeQueues(context.WithoutCancel(ctx), r.queues.All()...)
	}()

	for _, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}

		sr, err := r.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		if err != nil {
			result.Err = err
			break
		}
		if sr.Failure != "" {
			result.Failure = sr.Failure
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runStep(ctx context.Context, step Step) (StepResult, error) {
	start := time.Now()
	sr := StepResult{Step: step}

	if err := r.h.Send(ctx, step.Text, step.Target, step.ReplyTo, step.SelectorValue); err != nil {
		return sr, err
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	reply, err := r.h.Receive(ctx, step.ReplyTo, timeout)
	sr.Elapsed = time.Since(start)
	if err != nil {
		return sr, err
	}
	sr.Reply = reply

	switch {
	case step.ExpectReply && reply == nil:
		sr.Failure = fmt.Sprintf("Missing reply from %s", step.ReplyTo.Name)
	case !step.ExpectReply && reply != nil:
		sr.Failure = fmt.Sprintf("Unexpected reply from %s", step.ReplyTo.Name)
	}
	return sr, nil
}
