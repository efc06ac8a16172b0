// Package broker selects the messaging and management implementation for
// a broker name. Each driver opens a backends.QueueBackend for messaging
// and a backends.Admin for provisioning and purging.
package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/makibytes/seltest/broker/artemis"
	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/broker/kafka"
	"github.com/makibytes/seltest/broker/memory"
	"github.com/makibytes/seltest/broker/nats"
	"github.com/makibytes/seltest/broker/pulsar"
	"github.com/makibytes/seltest/broker/rabbitmq"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/log"
)

// Endpoint is everything a driver needs to reach a broker
type Endpoint struct {
	Connection config.Connection
	Management config.ManagementConfig
}

// Driver opens connections to one kind of broker
type Driver struct {
	Name        string
	Description string
	OpenQueue   func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error)
	OpenAdmin   func(ctx context.Context, ep Endpoint) (backends.Admin, error)
}

var (
	mu      sync.RWMutex
	drivers = make(map[string]Driver)
)

// Register makes a driver available by name. Registering a name twice panics.
func Register(d Driver) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := drivers[d.Name]; dup {
		panic("broker: driver registered twice: " + d.Name)
	}
	drivers[d.Name] = d
}

// Lookup returns the driver registered under name
func Lookup(name string) (Driver, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := drivers[strings.ToLower(name)]
	if !ok {
		return Driver{}, fmt.Errorf("unknown broker %q (available: %s)", name, strings.Join(namesLocked(), ", "))
	}
	return d, nil
}

// Names returns the registered driver names in order
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// processBroker backs the memory driver; it lives as long as the process
var processBroker = memory.NewBroker(memory.AutoCreate())

func artemisOptions(m config.ManagementConfig) artemis.Options {
	return artemis.Options{
		ManagementAddress: m.Address,
		ResourcePrefix:    m.ResourcePrefix,
		AddressPrefix:     m.AddressPrefix,
	}
}

func natsArgs(c config.Connection) nats.ConnArguments {
	return nats.ConnArguments{
		Server:   c.Server,
		User:     c.User,
		Password: c.Password,
		TLS:      c.TLS,
	}
}

func kafkaArgs(c config.Connection) kafka.ConnArguments {
	return kafka.ConnArguments{
		Server:   c.Server,
		User:     c.User,
		Password: c.Password,
		TLS:      c.TLS,
	}
}

func pulsarArgs(c config.Connection) pulsar.ConnArguments {
	return pulsar.ConnArguments{
		Server:   c.Server,
		User:     c.User,
		Password: c.Password,
		TLS:      c.TLS,
	}
}

func init() {
	Register(Driver{
		Name:        "artemis",
		Description: "Apache ActiveMQ Artemis over AMQP 1.0, management over AMQP or Jolokia",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return artemis.NewQueueAdapter(ctx, ep.Connection.AMQP(), artemisOptions(ep.Management))
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			if ep.Connection.ManagementURL != "" {
				log.Verbose("🔧 using Jolokia at %s", ep.Connection.ManagementURL)
				return artemis.NewJolokiaAdmin(artemis.JolokiaArgs{
					Server:   ep.Connection.Server,
					URL:      ep.Connection.ManagementURL,
					User:     ep.Connection.User,
					Password: ep.Connection.Password,
					Options:  artemisOptions(ep.Management),
				})
			}
			return artemis.NewManagementClient(ctx, ep.Connection.AMQP(), artemisOptions(ep.Management))
		},
	})

	Register(Driver{
		Name:        "rabbitmq",
		Description: "RabbitMQ 4 over AMQP 1.0, management over the HTTP API (no broker-side selectors)",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return rabbitmq.NewQueueAdapter(ctx, ep.Connection.AMQP())
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			return rabbitmq.NewAdmin(rabbitmq.ManagementArgs{
				Server:   ep.Connection.Server,
				URL:      ep.Connection.ManagementURL,
				User:     ep.Connection.User,
				Password: ep.Connection.Password,
			})
		},
	})

	Register(Driver{
		Name:        "nats",
		Description: "NATS JetStream, one work-queue stream per queue (no broker-side selectors)",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return nats.NewQueueAdapter(natsArgs(ep.Connection))
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			return nats.NewAdmin(natsArgs(ep.Connection))
		},
	})

	Register(Driver{
		Name:        "kafka",
		Description: "Apache Kafka, one topic and consumer group per queue (no broker-side selectors)",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return kafka.NewQueueAdapter(kafkaArgs(ep.Connection))
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			return kafka.NewAdmin(kafkaArgs(ep.Connection))
		},
	})

	Register(Driver{
		Name:        "pulsar",
		Description: "Apache Pulsar, one shared subscription per queue, admin over REST (no broker-side selectors)",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return pulsar.NewQueueAdapter(pulsarArgs(ep.Connection))
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			return pulsar.NewAdmin(pulsar.ManagementArgs{
				Server:   ep.Connection.Server,
				URL:      ep.Connection.ManagementURL,
				Password: ep.Connection.Password,
			}), nil
		},
	})

	Register(Driver{
		Name:        "memory",
		Description: "in-process broker for dry runs, shared by all connections of one process",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return processBroker.Client(), nil
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			return processBroker.Admin(), nil
		},
	})
}
