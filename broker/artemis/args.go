package artemis

import "strings"

// Management resource names and message properties understood by the broker
const (
	DefaultManagementAddress = "activemq.management"
	DefaultResourcePrefix    = "queue."
	BrokerResource           = "broker"

	propResourceName       = "_AMQ_ResourceName"
	propOperationName      = "_AMQ_OperationName"
	propAttribute          = "_AMQ_Attribute"
	propOperationSucceeded = "_AMQ_OperationSucceeded"
)

// Options tunes how queue names map onto Artemis addresses and resources
type Options struct {
	// ManagementAddress receives management requests
	ManagementAddress string
	// ResourcePrefix is prepended to the queue address to name its control resource
	ResourcePrefix string
	// AddressPrefix is prepended to queue names, e.g. "jms.queue." on brokers
	// embedded in an application server
	AddressPrefix string
}

func (o Options) withDefaults() Options {
	if o.ManagementAddress == "" {
		o.ManagementAddress = DefaultManagementAddress
	}
	if o.ResourcePrefix == "" {
		o.ResourcePrefix = DefaultResourcePrefix
	}
	return o
}

// Address maps a queue name to its broker address. Names that already carry
// the prefix, such as reply-to values read from a message, are left alone.
func (o Options) Address(queue string) string {
	if o.AddressPrefix == "" || strings.HasPrefix(queue, o.AddressPrefix) {
		return queue
	}
	return o.AddressPrefix + queue
}

// QueueResource names the management resource controlling queue
func (o Options) QueueResource(queue string) string {
	return o.withDefaults().ResourcePrefix + o.Address(queue)
}
