// Package scenario defines the selector scenarios and runs them against a
// harness. A scenario sends request messages tagged with a selector value
// and checks which reply queues receive an answer from the consumer under
// test.
package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/harness"
)

// DefaultReplyTimeout is how long a step waits for a reply before the
// timeout factor is applied.
const DefaultReplyTimeout = 5 * time.Second

// Step sends one message and checks for a reply.
type Step struct {
	Text          string
	Target        harness.QueueRef
	ReplyTo       harness.QueueRef
	SelectorValue string
	ExpectReply   bool
	// Timeout overrides DefaultReplyTimeout
	Timeout time.Duration
}

// Scenario is an ordered list of steps.
type Scenario struct {
	Name  string
	Steps []Step
}

// Queues are the three queues every scenario works with.
type Queues struct {
	Inbound harness.QueueRef
	ReplyA  harness.QueueRef
	ReplyB  harness.QueueRef
}

// All returns inbound, replyA and replyB.
func (q Queues) All() []harness.QueueRef {
	return []harness.QueueRef{q.Inbound, q.ReplyA, q.ReplyB}
}

// Values are the selector values and the consumer named in message texts.
type Values struct {
	Consumer string
	Matching string
	Mismatch string
	Timeout  time.Duration
}

// ValuesFromSuite takes the values of a loaded suite.
func ValuesFromSuite(s *config.Suite) Values {
	return Values{
		Consumer: s.ConsumerName,
		Matching: s.MatchingValue,
		Mismatch: s.MismatchValue,
		Timeout:  s.ReceiveTimeout,
	}
}

// MessageSelectors sends one message the consumer must ignore, expecting
// silence on replyA, and one it must answer on replyB.
func MessageSelectors(q Queues, v Values) Scenario {
	return Scenario{
		Name: "testMessageSelectors",
		Steps: []Step{
			{
				Text:          greeting("1st", v.Consumer, v.Mismatch),
				Target:        q.Inbound,
				ReplyTo:       q.ReplyA,
				SelectorValue: v.Mismatch,
				ExpectReply:   false,
				Timeout:       v.Timeout,
			},
			{
				Text:          greeting("2nd", v.Consumer, v.Matching),
				Target:        q.Inbound,
				ReplyTo:       q.ReplyB,
				SelectorValue: v.Matching,
				ExpectReply:   true,
				Timeout:       v.Timeout,
			},
		},
	}
}

// RetestMessageSelectors sends two matching messages and expects both to
// be answered.
func RetestMessageSelectors(q Queues, v Values) Scenario {
	return Scenario{
		Name: "retestMessageSelectors",
		Steps: []Step{
			{
				Text:          greeting("1st", v.Consumer, v.Matching),
				Target:        q.Inbound,
				ReplyTo:       q.ReplyA,
				SelectorValue: v.Matching,
				ExpectReply:   true,
				Timeout:       v.Timeout,
			},
			{
				Text:          greeting("2nd", v.Consumer, v.Matching),
				Target:        q.Inbound,
				ReplyTo:       q.ReplyB,
				SelectorValue: v.Matching,
				ExpectReply:   true,
				Timeout:       v.Timeout,
			},
		},
	}
}

// All returns both scenarios in their canonical order.
func All(q Queues, v Values) []Scenario {
	return []Scenario{MessageSelectors(q, v), RetestMessageSelectors(q, v)}
}

func greeting(ordinal, consumer, value string) string {
	return fmt.Sprintf("Say %s hello to %s in %s format", ordinal, consumer, strings.TrimPrefix(value, "Version "))
}
