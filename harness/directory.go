package harness

import (
	"fmt"
	"sort"
	"sync"
)

// QueueRef is a provisioned queue as seen by the client: its broker name
// and the lookup path it was bound to.
type QueueRef struct {
	Name       string
	LookupPath string
}

func (r QueueRef) String() string {
	if r.LookupPath == "" {
		return r.Name
	}
	return r.LookupPath
}

// Directory maps lookup paths to queues. It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]QueueRef
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]QueueRef)}
}

// Bind makes ref resolvable by its lookup path, or by its name when it has
// no lookup path.
func (d *Directory) Bind(ref QueueRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[ref.String()] = ref
}

// Unbind removes every binding of the named queue.
func (d *Directory) Unbind(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, ref := range d.entries {
		if ref.Name == name {
			delete(d.entries, path)
		}
	}
}

// Lookup resolves a lookup path.
func (d *Directory) Lookup(path string) (QueueRef, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ref, ok := d.entries[path]
	if !ok {
		return QueueRef{}, fmt.Errorf("%w: %s", ErrUnknownLookup, path)
	}
	return ref, nil
}

// Refs returns all bindings ordered by lookup path.
func (d *Directory) Refs() []QueueRef {
	d.mu.RLock()
	defer d.mu.RUnlock()
	refs := make([]QueueRef, 0, len(d.entries))
	for _, ref := range d.entries {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return refs
}
