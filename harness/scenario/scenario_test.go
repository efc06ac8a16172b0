package scenario

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/broker/memory"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/harness"
	"github.com/makibytes/seltest/responder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	broker    *memory.Broker
	harness   *harness.Harness
	suite     *Suite
	queues    Queues
	responder *responder.Responder
}

func newFixture(t *testing.T, cfg *config.Suite, withResponder bool) *fixture {
	t.Helper()
	ctx := context.Background()
	broker := memory.NewBroker()
	dir := harness.NewDirectory()

	open := func(context.Context) (backends.Admin, error) { return broker.Admin(), nil }
	suite := NewSuite(cfg, harness.NewProvisioner(open, dir), dir)
	queues, err := suite.Setup(ctx)
	require.NoError(t, err)

	h := harness.New(broker.Client(), broker.Admin(), dir, harness.SettingsFromSuite(cfg))
	f := &fixture{broker: broker, harness: h, suite: suite, queues: queues}

	if withResponder {
		r, err := responder.New(broker.Client(), responder.Options{
			Queue:        queues.Inbound.Name,
			Selector:     cfg.ConsumerSelector,
			PollInterval: 20 * time.Millisecond,
		})
		require.NoError(t, err)
		require.NoError(t, r.Start(ctx))
		f.responder = r
	}

	t.Cleanup(func() {
		if f.responder != nil {
			f.responder.Stop()
		}
		suite.Teardown(context.Background())
		_ = h.Close()
	})
	return f
}

func fastSuite(t *testing.T) *config.Suite {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.ReceiveTimeout = 200 * time.Millisecond
	return cfg
}

func TestScenarioDefinitions(t *testing.T) {
	q := Queues{
		Inbound: harness.QueueRef{Name: "ejb2x/queue"},
		ReplyA:  harness.QueueRef{Name: "ejb2x/replyQueueA"},
		ReplyB:  harness.QueueRef{Name: "ejb2x/replyQueueB"},
	}
	v := Values{Consumer: "EJB2xMDB", Matching: "Version 1.1", Mismatch: "Version 1.0"}

	mismatch := MessageSelectors(q, v)
	require.Len(t, mismatch.Steps, 2)
	assert.Equal(t, "Say 1st hello to EJB2xMDB in 1.0 format", mismatch.Steps[0].Text)
	assert.Equal(t, "Version 1.0", mismatch.Steps[0].SelectorValue)
	assert.Equal(t, q.ReplyA, mismatch.Steps[0].ReplyTo)
	assert.False(t, mismatch.Steps[0].ExpectReply)
	assert.Equal(t, "Say 2nd hello to EJB2xMDB in 1.1 format", mismatch.Steps[1].Text)
	assert.Equal(t, q.ReplyB, mismatch.Steps[1].ReplyTo)
	assert.True(t, mismatch.Steps[1].ExpectReply)

	match := RetestMessageSelectors(q, v)
	require.Len(t, match.Steps, 2)
	for _, step := range match.Steps {
		assert.Equal(t, "Version 1.1", step.SelectorValue)
		assert.Equal(t, q.Inbound, step.Target)
		assert.True(t, step.ExpectReply)
	}
	assert.Equal(t, "Say 1st hello to EJB2xMDB in 1.1 format", match.Steps[0].Text)
}

func TestBothScenariosPassWithSelectiveConsumer(t *testing.T) {
	cfg := fastSuite(t)
	f := newFixture(t, cfg, true)

	report := NewRunner(f.harness, f.queues).Run(context.Background(), f.suite.Scenarios(f.queues)...)

	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.True(t, res.Passed(), "%s: %s %v", res.Scenario, res.Failure, res.Err)
	}
	assert.True(t, report.Passed())
	assert.Equal(t, int64(3), f.responder.Handled())
}

// stepOutcome is the part of a StepResult that does not vary between runs
type stepOutcome struct {
	Text    string
	Reply   string
	Failure string
}

func outcomes(res Result) []stepOutcome {
	var out []stepOutcome
	for _, step := range res.Steps {
		o := stepOutcome{Text: step.Step.Text, Failure: step.Failure}
		if step.Reply != nil {
			o.Reply = string(step.Reply.Data)
		}
		out = append(out, o)
	}
	return out
}

func TestRetestIsIndependentOfPreviousScenario(t *testing.T) {
	ctx := context.Background()
	cfg := fastSuite(t)
	values := ValuesFromSuite(cfg)

	alone := newFixture(t, cfg, true)
	first := NewRunner(alone.harness, alone.queues).
		Run(ctx, RetestMessageSelectors(alone.queues, values))
	require.Len(t, first.Results, 1)

	after := newFixture(t, cfg, true)
	second := NewRunner(after.harness, after.queues).
		Run(ctx, MessageSelectors(after.queues, values), RetestMessageSelectors(after.queues, values))
	require.Len(t, second.Results, 2)

	assert.True(t, first.Results[0].Passed())
	assert.True(t, second.Results[1].Passed())
	assert.Equal(t, outcomes(first.Results[0]), outcomes(second.Results[1]))
}

func TestQueuesArePurgedAfterScenario(t *testing.T) {
	cfg := fastSuite(t)
	f := newFixture(t, cfg, true)

	NewRunner(f.harness, f.queues).Run(context.Background(), f.suite.Scenarios(f.queues)...)

	// the 1.0 message is still on the inbound queue until the final purge
	for _, q := range f.queues.All() {
		assert.Equal(t, 0, f.broker.Depth(q.Name), q.Name)
	}
}

func TestStaleMessagesArePurgedBeforeScenario(t *testing.T) {
	cfg := fastSuite(t)
	f := newFixture(t, cfg, false)
	ctx := context.Background()

	// a leftover reply would otherwise satisfy "expect no reply" wrongly
	require.NoError(t, f.harness.Send(ctx, "stale", f.queues.ReplyA, f.queues.ReplyA, "x"))

	res := NewRunner(f.harness, f.queues).RunScenario(ctx, MessageSelectors(f.queues, ValuesFromSuite(cfg)))

	require.False(t, res.Passed())
	assert.Equal(t, "Missing reply from ejb2x/replyQueueB", res.Failure)
	assert.Len(t, res.Steps, 2)
}

func TestMissingReplyWithoutConsumer(t *testing.T) {
	cfg := fastSuite(t)
	f := newFixture(t, cfg, false)

	res := NewRunner(f.harness, f.queues).RunScenario(context.Background(), RetestMessageSelectors(f.queues, ValuesFromSuite(cfg)))

	assert.Equal(t, "Missing reply from ejb2x/replyQueueA", res.Failure)
	assert.Len(t, res.Steps, 1, "a failed expectation stops the scenario")
}

func TestUnexpectedReplyFromConsumerWithoutSelector(t *testing.T) {
	cfg := fastSuite(t)
	cfg.ConsumerSelector = ""
	f := newFixture(t, cfg, true)

	res := NewRunner(f.harness, f.queues).RunScenario(context.Background(), MessageSelectors(f.queues, ValuesFromSuite(cfg)))

	assert.Equal(t, "Unexpected reply from ejb2x/replyQueueA", res.Failure)
}

func TestSendErrorStopsScenario(t *testing.T) {
	cfg := fastSuite(t)
	f := newFixture(t, cfg, false)
	f.broker.Admin().RemoveQueue(context.Background(), f.queues.Inbound.Name)

	res := NewRunner(f.harness, f.queues).RunScenario(context.Background(), MessageSelectors(f.queues, ValuesFromSuite(cfg)))

	var sendErr *harness.SendError
	require.True(t, errors.As(res.Err, &sendErr))
	assert.False(t, res.Passed())
}

func TestSetupFailureAborts(t *testing.T) {
	dir := harness.NewDirectory()
	open := func(context.Context) (backends.Admin, error) { return nil, errors.New("refused") }
	suite := NewSuite(config.DefaultSuite(), harness.NewProvisioner(open, dir), dir)

	_, err := suite.Setup(context.Background())

	var provErr *harness.ProvisioningError
	assert.ErrorAs(t, err, &provErr)
}

func TestReportRender(t *testing.T) {
	report := Report{
		Results: []Result{
			{Scenario: "testMessageSelectors", Steps: make([]StepResult, 2)},
			{Scenario: "retestMessageSelectors", Steps: make([]StepResult, 1), Failure: "Missing reply from ejb2x/replyQueueA"},
		},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	report.Render(&buf)

	out := buf.String()
	assert.Contains(t, out, "testMessageSelectors")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "Missing reply from ejb2x/replyQueueA")
	assert.Contains(t, out, "1 passed")
	assert.Contains(t, out, "1 failed")
	assert.Equal(t, 1, report.Failed())
	assert.False(t, report.Passed())
}
