//go:build ibmmq

package ibmmq

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
)

// Defaults of the developer image
const (
	DefaultPort         = "1414"
	DefaultQueueManager = "QM1"
	DefaultChannel      = "SYSTEM.DEF.SVRCONN"
)

type ConnArguments struct {
	Server       string
	User         string
	Password     string
	QueueManager string
	Channel      string
}

// endpoint is a client connection target after URL parsing and overrides
type endpoint struct {
	host         string
	port         string
	channel      string
	queueManager string
	user         string
	password     string
}

func (e endpoint) connectionName() string {
	return fmt.Sprintf("%s(%s)", e.host, e.port)
}

// Connect establishes a client connection to an IBM MQ queue manager
func Connect(args ConnArguments) (ibmmq.MQQueueManager, error) {
	ep, err := parseEndpoint(args)
	if err != nil {
		return ibmmq.MQQueueManager{}, err
	}

	cno := ibmmq.NewMQCNO()
	csp := ibmmq.NewMQCSP()
	if ep.user != "" {
		csp.AuthenticationType = ibmmq.MQCSP_AUTH_USER_ID_AND_PWD
		csp.UserId = ep.user
		csp.Password = ep.password
	}
	cno.SecurityParms = csp

	cd := ibmmq.NewMQCD()
	cd.ChannelName = ep.channel
	cd.ConnectionName = ep.connectionName()
	cno.ClientConn = cd
	cno.Options = ibmmq.MQCNO_CLIENT_BINDING

	qMgr, err := ibmmq.Connx(ep.queueManager, cno)
	if err != nil {
		return ibmmq.MQQueueManager{}, fmt.Errorf("connecting to queue manager %s at %s: %w", ep.queueManager, ep.connectionName(), err)
	}
	return qMgr, nil
}

// parseEndpoint reads a URL of the form
// ibmmq://[user:password@]host[:port]/QMGR?channel=CHANNEL.
// Explicit arguments win over the URL.
func parseEndpoint(args ConnArguments) (endpoint, error) {
	u, err := url.Parse(args.Server)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "" && u.Scheme != "ibmmq" {
		return endpoint{}, fmt.Errorf("invalid server URL %q: scheme must be ibmmq", args.Server)
	}

	ep := endpoint{
		host:         valueOr(u.Hostname(), "localhost"),
		port:         valueOr(u.Port(), DefaultPort),
		queueManager: valueOr(args.QueueManager, valueOr(strings.TrimPrefix(u.Path, "/"), DefaultQueueManager)),
		channel:      valueOr(args.Channel, valueOr(u.Query().Get("channel"), DefaultChannel)),
		user:         args.User,
		password:     args.Password,
	}
	if ep.user == "" && u.User != nil {
		ep.user = u.User.Username()
		ep.password, _ = u.User.Password()
	}
	return ep, nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
