//go:build integration

// Package integration starts brokers in containers for the driver
// integration tests and runs the selector scenarios against them.
// Build with: -tags integration
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/pulsar"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

// BrokerContainer holds a running test broker container.
type BrokerContainer struct {
	Container     testcontainers.Container
	URL           string
	ManagementURL string
	User          string
	Password      string
}

func (b *BrokerContainer) Terminate(ctx context.Context) {
	if b.Container != nil {
		b.Container.Terminate(ctx) //nolint:errcheck
	}
}

// StartArtemis starts an Apache Artemis container and returns its AMQP URL
// and the Jolokia endpoint of its web console.
func StartArtemis(ctx context.Context) (*BrokerContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "apache/activemq-artemis:latest-alpine",
		ExposedPorts: []string{"5672/tcp", "8161/tcp"},
		Env: map[string]string{
			"ARTEMIS_USER":     "artemis",
			"ARTEMIS_PASSWORD": "artemis",
		},
		WaitingFor: wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting Artemis: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	console, err := container.MappedPort(ctx, "8161")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{
		Container:     container,
		URL:           fmt.Sprintf("amqp://%s:%s", host, port.Port()),
		ManagementURL: fmt.Sprintf("http://%s:%s/console/jolokia", host, console.Port()),
		User:          "artemis",
		Password:      "artemis",
	}, nil
}

// StartRabbitMQ starts a RabbitMQ container using the testcontainers module
// and returns its AMQP URL and management API.
func StartRabbitMQ(ctx context.Context) (*BrokerContainer, error) {
	c, err := rabbitmq.Run(ctx, "rabbitmq:4-management-alpine")
	if err != nil {
		return nil, fmt.Errorf("starting RabbitMQ: %w", err)
	}

	amqpURL, err := c.AmqpURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	httpURL, err := c.HttpURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{
		Container:     c,
		URL:           amqpURL,
		ManagementURL: httpURL + "/api",
		User:          c.AdminUsername,
		Password:      c.AdminPassword,
	}, nil
}

// StartKafka starts a Kafka container using the testcontainers module and
// returns the broker address as a kafka:// URL.
func StartKafka(ctx context.Context) (*BrokerContainer, error) {
	c, err := kafka.Run(ctx, "confluentinc/cp-kafka:7.6.1")
	if err != nil {
		return nil, fmt.Errorf("starting Kafka: %w", err)
	}

	brokers, err := c.Brokers(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: "kafka://" + brokers[0]}, nil
}

// StartNATS starts a NATS container with JetStream enabled using the
// testcontainers module and returns its connection URL.
func StartNATS(ctx context.Context) (*BrokerContainer, error) {
	c, err := nats.Run(ctx, "nats:latest", nats.WithArgument("--js", ""))
	if err != nil {
		return nil, fmt.Errorf("starting NATS: %w", err)
	}

	url, err := c.ConnectionString(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: url}, nil
}

// StartPulsar starts an Apache Pulsar container using the testcontainers module
// and returns its broker URL and admin REST endpoint.
func StartPulsar(ctx context.Context) (*BrokerContainer, error) {
	c, err := pulsar.Run(ctx, "apachepulsar/pulsar:3.3.0")
	if err != nil {
		return nil, fmt.Errorf("starting Pulsar: %w", err)
	}

	brokerURL, err := c.BrokerURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	adminURL, err := c.HTTPServiceURL(ctx)
	if err != nil {
		c.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{Container: c, URL: brokerURL, ManagementURL: adminURL}, nil
}

// StartIBMMQ starts an IBM MQ developer container with queue manager QM1
// and returns a URL the ibmmq driver understands.
func StartIBMMQ(ctx context.Context) (*BrokerContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "icr.io/ibm-messaging/mq:latest",
		ExposedPorts: []string{"1414/tcp"},
		Env: map[string]string{
			"LICENSE":           "accept",
			"MQ_QMGR_NAME":      "QM1",
			"MQ_APP_PASSWORD":   "passw0rd",
			"MQ_ADMIN_PASSWORD": "passw0rd",
		},
		WaitingFor: wait.ForLog("Started web server").WithStartupTimeout(3 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting IBM MQ: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}
	port, err := container.MappedPort(ctx, "1414")
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &BrokerContainer{
		Container: container,
		URL:       fmt.Sprintf("ibmmq://%s:%s/QM1?channel=DEV.ADMIN.SVRCONN", host, port.Port()),
		User:      "admin",
		Password:  "passw0rd",
	}, nil
}
