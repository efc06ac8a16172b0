package scenario

import (
	"context"

	"github.com/makibytes/seltest/broker/backends"
	"github.com/makibytes/seltest/config"
	"github.com/makibytes/seltest/harness"
)

// Suite provisions the queues a run needs and removes them afterwards.
type Suite struct {
	cfg         *config.Suite
	provisioner *harness.Provisioner
	directory   *harness.Directory
}

func NewSuite(cfg *config.Suite, provisioner *harness.Provisioner, directory *harness.Directory) *Suite {
	return &Suite{cfg: cfg, provisioner: provisioner, directory: directory}
}

// Specs returns the queue definitions of the suite.
func (s *Suite) Specs() []backends.QueueSpec {
	var specs []backends.QueueSpec
	for _, q := range s.cfg.QueueConfigs() {
		specs = append(specs, backends.QueueSpec{Name: q.Name, LookupPath: q.LookupPath, Durable: q.Durable})
	}
	return specs
}

// Setup creates the queues and resolves them through their lookup paths.
// Any failure is returned and must abort the run.
func (s *Suite) Setup(ctx context.Context) (Queues, error) {
	if err := s.provisioner.Create(ctx, s.Specs()...); err != nil {
		return Queues{}, err
	}
	return s.Resolve()
}

// Resolve looks up the suite queues without provisioning them.
func (s *Suite) Resolve() (Queues, error) {
	var q Queues
	targets := []*harness.QueueRef{&q.Inbound, &q.ReplyA, &q.ReplyB}
	for i, cfg := range s.cfg.QueueConfigs() {
		path := cfg.LookupPath
		if path == "" {
			path = cfg.Name
		}
		ref, err := s.directory.Lookup(path)
		if err != nil {
			return Queues{}, err
		}
		*targets[i] = ref
	}
	return q, nil
}

// Bind records the suite queues in the directory as already provisioned.
func (s *Suite) Bind() {
	for _, q := range s.cfg.QueueConfigs() {
		s.directory.Bind(harness.QueueRef{Name: q.Name, LookupPath: q.LookupPath})
	}
}

// Teardown removes the queues. Failures are logged only.
func (s *Suite) Teardown(ctx context.Context) {
	var names []string
	for _, q := range s.cfg.QueueConfigs() {
		names = append(names, q.Name)
	}
	s.provisioner.Remove(ctx, names...)
}

// Scenarios returns both scenarios for the resolved queues.
func (s *Suite) Scenarios(q Queues) []Scenario {
	return All(q, ValuesFromSuite(s.cfg))
}
