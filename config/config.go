// Package config holds broker connection settings and the suite definition
// that describes which queues a selector test run provisions and uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/makibytes/seltest/broker/amqpcommon"
	"github.com/makibytes/seltest/broker/tlsconf"
)

// Environment variables and their fallbacks
const (
	EnvBroker        = "SELTEST_BROKER"
	EnvServer        = "SELTEST_SERVER"
	EnvUser          = "SELTEST_USER"
	EnvPassword      = "SELTEST_PASSWORD"
	EnvManagementURL = "SELTEST_MANAGEMENT_URL"
	EnvTimeoutFactor = "SELTEST_TIMEOUT_FACTOR"

	DefaultBroker           = "artemis"
	DefaultServer           = "amqp://localhost:5672"
	DefaultSelectorProperty = "MessageFormat"
)

// Connection identifies the broker and how to reach it
type Connection struct {
	Broker        string
	Server        string
	User          string
	Password      string
	ManagementURL string
	TLS           tlsconf.Config
}

// ConnectionFromEnv returns a Connection filled from the environment
func ConnectionFromEnv() Connection {
	return Connection{
		Broker:        envOr(EnvBroker, DefaultBroker),
		Server:        envOr(EnvServer, DefaultServer),
		User:          os.Getenv(EnvUser),
		Password:      os.Getenv(EnvPassword),
		ManagementURL: os.Getenv(EnvManagementURL),
	}
}

// AMQP returns the connection arguments for AMQP 1.0 brokers
func (c Connection) AMQP() amqpcommon.ConnArguments {
	return amqpcommon.ConnArguments{
		Server:   c.Server,
		User:     c.User,
		Password: c.Password,
		TLS:      c.TLS,
	}
}

// QueueConfig names a queue and the lookup path it is bound to
type QueueConfig struct {
	Name       string `yaml:"name"`
	LookupPath string `yaml:"lookup"`
	Durable    bool   `yaml:"durable"`
}

// ManagementConfig describes the broker's management request/reply channel
type ManagementConfig struct {
	Address        string `yaml:"address"`
	ResourcePrefix string `yaml:"resourcePrefix"`
	AddressPrefix  string `yaml:"addressPrefix"`
}

// Suite is the YAML suite file
type Suite struct {
	Queues struct {
		Inbound QueueConfig `yaml:"inbound"`
		ReplyA  QueueConfig `yaml:"replyA"`
		ReplyB  QueueConfig `yaml:"replyB"`
	} `yaml:"queues"`
	SelectorProperty string           `yaml:"selectorProperty"`
	ConsumerSelector string           `yaml:"consumerSelector"`
	ConsumerName     string           `yaml:"consumerName"`
	MatchingValue    string           `yaml:"matchingValue"`
	MismatchValue    string           `yaml:"mismatchValue"`
	ReceiveTimeout   time.Duration    `yaml:"receiveTimeout"`
	PurgeTimeout     time.Duration    `yaml:"purgeTimeout"`
	TimeoutFactor    int              `yaml:"timeoutFactor"`
	Management       ManagementConfig `yaml:"management"`
}

// DefaultSuite returns the suite used when no file is given: an inbound
// queue and two reply queues, and a consumer selecting "Version 1.1".
func DefaultSuite() *Suite {
	s := &Suite{}
	s.Queues.Inbound = QueueConfig{Name: "ejb2x/queue", LookupPath: "java:jboss/ejb2x/queue"}
	s.Queues.ReplyA = QueueConfig{Name: "ejb2x/replyQueueA", LookupPath: "java:jboss/ejb2x/replyQueueA"}
	s.Queues.ReplyB = QueueConfig{Name: "ejb2x/replyQueueB", LookupPath: "java:jboss/ejb2x/replyQueueB"}
	s.SelectorProperty = DefaultSelectorProperty
	s.MatchingValue = "Version 1.1"
	s.MismatchValue = "Version 1.0"
	s.ConsumerName = "EJB2xMDB"
	s.ReceiveTimeout = 5 * time.Second
	s.PurgeTimeout = 10 * time.Second
	s.TimeoutFactor = 100
	return s
}

// Load reads a suite file. Fields missing from the file keep their defaults
// and SELTEST_TIMEOUT_FACTOR overrides the file's factor.
func Load(path string) (*Suite, error) {
	s := DefaultSuite()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading suite file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing suite file %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvTimeoutFactor); v != "" {
		factor, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvTimeoutFactor, v, err)
		}
		s.TimeoutFactor = factor
	}

	if s.ConsumerSelector == "" {
		s.ConsumerSelector = fmt.Sprintf("%s = '%s'", s.SelectorProperty, strings.ReplaceAll(s.MatchingValue, "'", "''"))
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the suite can drive a run
func (s *Suite) Validate() error {
	queues := map[string]QueueConfig{
		"inbound": s.Queues.Inbound,
		"replyA":  s.Queues.ReplyA,
		"replyB":  s.Queues.ReplyB,
	}
	seen := make(map[string]string)
	for role, q := range queues {
		if q.Name == "" {
			return fmt.Errorf("queue %s: name is required", role)
		}
		if other, dup := seen[q.Name]; dup {
			return fmt.Errorf("queues %s and %s share the name %q", other, role, q.Name)
		}
		seen[q.Name] = role
	}
	if s.SelectorProperty == "" {
		return fmt.Errorf("selectorProperty is required")
	}
	if s.MatchingValue == s.MismatchValue {
		return fmt.Errorf("matchingValue and mismatchValue must differ")
	}
	if s.ReceiveTimeout <= 0 {
		return fmt.Errorf("receiveTimeout must be positive")
	}
	if s.PurgeTimeout <= 0 {
		return fmt.Errorf("purgeTimeout must be positive")
	}
	if s.TimeoutFactor <= 0 {
		return fmt.Errorf("timeoutFactor must be positive")
	}
	return nil
}

// QueueConfigs returns inbound, replyA and replyB in that order
func (s *Suite) QueueConfigs() []QueueConfig {
	return []QueueConfig{s.Queues.Inbound, s.Queues.ReplyA, s.Queues.ReplyB}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
