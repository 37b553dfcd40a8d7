package orchestrator

import (
	"sort"

	"github.com/vmfinder/vmfinder/internal/record"
)

// List returns a snapshot of all managed VMs sorted by name, each with
// its run state reconciled against the hypervisor. The returned records
// are copies; callers may hold them as long as they like.
func (o *Orchestrator) List() []*record.Record {
	o.mu.RLock()
	names := make([]string, 0, len(o.records))
	for name := range o.records {
		names = append(names, name)
	}
	o.mu.RUnlock()
	sort.Strings(names)

	out := make([]*record.Record, 0, len(names))
	for _, name := range names {
		rec, err := o.Get(name)
		if err != nil {
			// Destroyed between snapshot and read.
			continue
		}
		out = append(out, rec)
	}
	return out
}
