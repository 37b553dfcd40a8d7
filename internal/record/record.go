// Package record defines the VM Record: the persisted description of a
// managed virtual machine. Records are owned by the orchestrator and
// stored in libvirt domain metadata, making the hypervisor the single
// place managed state lives.
package record

import "time"

// State is a VM lifecycle state. Run states (running, suspended) are
// reconciled from the hypervisor; the record value is a cache.
type State string

const (
	// StateCreating marks a record whose resources are still being
	// provisioned. Visible only while a create is in flight.
	StateCreating State = "creating"

	// StateStopped is a defined VM that is powered off.
	StateStopped State = "stopped"

	// StateRunning is an active VM.
	StateRunning State = "running"

	// StateSuspended is a paused VM whose guest memory is retained.
	StateSuspended State = "suspended"

	// StateDestroying marks a record being torn down.
	StateDestroying State = "destroying"

	// StateFailed marks a create that could not complete. Failed records
	// are rolled back and removed; the state survives only in the error
	// surfaced to the caller.
	StateFailed State = "failed"
)

// Record describes one managed VM.
type Record struct {
	// Name is unique across the managed set.
	Name string `yaml:"name" json:"name"`

	// Template names the registry template the VM was created from.
	Template string `yaml:"template" json:"template"`

	VCPUs     int `yaml:"vcpus" json:"vcpus"`
	MemoryMiB int `yaml:"memory_mib" json:"memory_mib"`

	// DiskGB is the working disk capacity. It only ever grows.
	DiskGB int `yaml:"disk_gb" json:"disk_gb"`

	// Network is the libvirt network the VM attaches to.
	Network string `yaml:"network,omitempty" json:"network,omitempty"`

	State State `yaml:"state" json:"state"`

	// DomainUUID is the weak reference into the hypervisor's own store.
	DomainUUID string `yaml:"domain_uuid" json:"domain_uuid"`

	// DiskPath is the VM's working disk location.
	DiskPath string `yaml:"disk_path" json:"disk_path"`

	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Clone returns an independent copy, so snapshots handed to readers
// never alias orchestrator-owned state.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}
