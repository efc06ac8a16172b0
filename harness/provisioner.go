package harness

import (
	"context"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/log"
)

// AdminOpener opens a management connection.
type AdminOpener func(ctx context.Context) (backends.Admin, error)

// Provisioner creates and removes queues over a management connection it
// opens per call, and keeps the directory in step.
type Provisioner struct {
	open      AdminOpener
	directory *Directory
}

func NewProvisioner(open AdminOpener, directory *Directory) *Provisioner {
	return &Provisioner{open: open, directory: directory}
}

// Create creates every queue and binds it to its lookup path. Creating a
// queue that exists is not an error. The first failure stops provisioning
// and is returned as a *ProvisioningError.
func (p *Provisioner) Create(ctx context.Context, specs ...backends.QueueSpec) error {
	admin, err := p.open(ctx)
	if err != nil {
		return &ProvisioningError{Op: "connect", Err: err}
	}
	defer closeAdmin(admin)

	for _, spec := range specs {
		log.Verbose("🔧 creating queue %s", spec.Name)
		if err := admin.CreateQueue(ctx, spec); err != nil {
			return &ProvisioningError{Queue: spec.Name, Op: "create", Err: err}
		}
		p.directory.Bind(QueueRef{Name: spec.Name, LookupPath: spec.LookupPath})
	}
	return nil
}

// Remove deletes every named queue. Failures, including a failed admin
// connection, are logged and otherwise ignored so teardown always runs to
// the end.
func (p *Provisioner) Remove(ctx context.Context, names ...string) {
	for _, name := range names {
		p.directory.Unbind(name)
	}

	admin, err := p.open(ctx)
	if err != nil {
		log.Warn("cannot remove queues: %s", err)
		return
	}
	defer closeAdmin(admin)

	for _, name := range names {
		log.Verbose("🔧 removing queue %s", name)
		if err := admin.RemoveQueue(ctx, name); err != nil {
			log.Warn("removing queue %s: %s", name, err)
		}
	}
}

func closeAdmin(admin backends.Admin) {
	if err := admin.Close(); err != nil {
		log.Verbose("closing admin connection: %s", err)
	}
}
