// Package kafka treats a Kafka topic as a queue: every queue is a
// single-partition topic consumed by one consumer group, so each message
// is delivered once. Kafka has no selectors; filtering happens in the
// client.
package kafka

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/makibytes/seltest/broker/tlsconf"
)

// QueueGroup is the consumer group that turns a topic into a queue
const QueueGroup = "seltest-queue"

// TLSConfig holds TLS connection parameters for Kafka
type TLSConfig = tlsconf.Config

type ConnArguments struct {
	Server   string
	User     string
	Password string
	TLS      TLSConfig
}

// endpoint is a parsed ConnArguments
type endpoint struct {
	brokers []string
	tls     *tls.Config
	sasl    sasl.Mechanism
}

func parseEndpoint(args ConnArguments) (*endpoint, error) {
	brokers, tlsConfig, err := parseKafkaURL(args.Server, args.TLS)
	if err != nil {
		return nil, err
	}
	return &endpoint{
		brokers: brokers,
		tls:     tlsConfig,
		sasl:    getSASLMechanism(args.User, args.Password),
	}, nil
}

func (e *endpoint) dialer() *kafkago.Dialer {
	return &kafkago.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           e.tls,
		SASLMechanism: e.sasl,
	}
}

func (e *endpoint) transport() *kafkago.Transport {
	return &kafkago.Transport{
		TLS:  e.tls,
		SASL: e.sasl,
	}
}

// topicName maps a queue name to a legal topic name
func topicName(queue string) string {
	return strings.NewReplacer("/", ".", ":", "_", " ", "_").Replace(queue)
}

// parseKafkaURL parses the server URL and returns brokers and TLS config.
// The host part may list several brokers separated by commas.
func parseKafkaURL(serverURL string, tlsCfg TLSConfig) ([]string, *tls.Config, error) {
	scheme, hosts, ok := strings.Cut(serverURL, "://")
	if !ok {
		return nil, nil, fmt.Errorf("invalid server URL %q: missing scheme", serverURL)
	}
	hosts, _, _ = strings.Cut(hosts, "/")

	var brokers []string
	for _, host := range strings.Split(hosts, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(host); err != nil {
			return nil, nil, fmt.Errorf("invalid broker address %q: %w", host, err)
		}
		brokers = append(brokers, host)
	}
	if len(brokers) == 0 {
		return nil, nil, fmt.Errorf("invalid server URL %q: no host", serverURL)
	}

	var tlsConfig *tls.Config
	if scheme == "kafka+ssl" || scheme == "kafkas" || tlsCfg.Requested() {
		var err error
		tlsConfig, err = tlsCfg.Build()
		if err != nil {
			return nil, nil, err
		}
	}

	return brokers, tlsConfig, nil
}

// getSASLMechanism returns SASL mechanism if credentials are provided
func getSASLMechanism(user, password string) sasl.Mechanism {
	if user != "" && password != "" {
		return &plain.Mechanism{
			Username: user,
			Password: password,
		}
	}
	return nil
}
