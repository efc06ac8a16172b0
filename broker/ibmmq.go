//go:build ibmmq

package broker

import (
	"context"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/broker/ibmmq"
)

func ibmmqArgs(ep Endpoint) ibmmq.ConnArguments {
	return ibmmq.ConnArguments{
		Server:   ep.Connection.Server,
		User:     ep.Connection.User,
		Password: ep.Connection.Password,
	}
}

func init() {
	Register(Driver{
		Name:        "ibmmq",
		Description: "IBM MQ client connection, admin through PCF commands",
		OpenQueue: func(ctx context.Context, ep Endpoint) (backends.QueueBackend, error) {
			return ibmmq.NewQueueAdapter(ibmmqArgs(ep))
		},
		OpenAdmin: func(ctx context.Context, ep Endpoint) (backends.Admin, error) {
			return ibmmq.NewAdmin(ibmmqArgs(ep))
		},
	})
}
