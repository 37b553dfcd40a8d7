// Package orchestrator owns the VM lifecycle: it sequences the
// provisioner, the domain builder, and the hypervisor so that every
// managed VM moves through a single state machine
// (absent -> creating -> stopped -> running <-> suspended -> destroying)
// and every failure either rolls back cleanly or surfaces a classified
// error.
//
// The hypervisor is the authoritative store. Records live in domain
// metadata; the in-memory map is a cache rebuilt at startup and
// reconciled against libvirt run states on every read.
package orchestrator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/vmfinder/vmfinder/internal/domain"
	"github.com/vmfinder/vmfinder/internal/hypervisor"
	"github.com/vmfinder/vmfinder/internal/metadata"
	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// DefaultShutdownTimeout is how long Stop waits for a graceful guest
// shutdown before forcing power-off.
const DefaultShutdownTimeout = 30 * time.Second

// Config carries the orchestrator's dependencies.
type Config struct {
	Hypervisor  Hypervisor
	Provisioner Provisioner
	Templates   TemplateStore

	// Injector handles SetPassword. Optional; without one SetPassword
	// returns an error.
	Injector CredentialInjector

	// StorageBase is the directory working disks and seed ISOs live in.
	StorageBase string

	// ShutdownTimeout overrides DefaultShutdownTimeout when > 0.
	ShutdownTimeout time.Duration
}

// Orchestrator drives VM lifecycle operations. All exported methods are
// safe for concurrent use; operations on the same VM name are
// serialized.
type Orchestrator struct {
	lv          Hypervisor
	meta        *metadata.Store
	prov        Provisioner
	templates   TemplateStore
	injector    CredentialInjector
	builder     *domain.Builder
	storageBase string

	shutdownTimeout time.Duration

	locks nameLocks

	mu      sync.RWMutex
	records map[string]*record.Record
}

// New builds an orchestrator and rebuilds the record cache from the
// hypervisor's managed domains.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Hypervisor == nil {
		return nil, fmt.Errorf("orchestrator: hypervisor client is required")
	}
	if cfg.Provisioner == nil {
		return nil, fmt.Errorf("orchestrator: disk provisioner is required")
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("orchestrator: template store is required")
	}
	if cfg.StorageBase == "" {
		return nil, fmt.Errorf("orchestrator: storage base is required")
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	o := &Orchestrator{
		lv:              cfg.Hypervisor,
		meta:            metadata.NewStore(cfg.Hypervisor),
		prov:            cfg.Provisioner,
		templates:       cfg.Templates,
		injector:        cfg.Injector,
		builder:         domain.New(),
		storageBase:     cfg.StorageBase,
		shutdownTimeout: timeout,
		records:         make(map[string]*record.Record),
	}

	if err := o.loadRecords(); err != nil {
		return nil, err
	}
	return o, nil
}

// loadRecords walks all defined domains and adopts the ones carrying a
// vmfinder record. Domains without a record belong to someone else and
// are left alone.
func (o *Orchestrator) loadRecords() error {
	domains, _, err := o.lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return vmerr.Hypervisor("list domains", err)
	}

	for _, dom := range domains {
		if !o.meta.Managed(dom) {
			continue
		}
		rec, err := o.meta.Load(dom)
		if err != nil {
			log.Printf("Warning: skipping domain %s with unreadable record: %v", dom.Name, err)
			continue
		}
		if st, err := o.runState(dom); err == nil {
			rec.State = lifecycleState(st)
		}
		o.records[rec.Name] = rec
	}

	return nil
}

// lifecycleState maps a hypervisor run state onto the record state
// machine. Transient libvirt states collapse to the nearest stable one.
func lifecycleState(s hypervisor.RunState) record.State {
	switch s {
	case hypervisor.StateRunning, hypervisor.StateBlocked:
		return record.StateRunning
	case hypervisor.StatePaused:
		return record.StateSuspended
	default:
		return record.StateStopped
	}
}

func (o *Orchestrator) runState(dom libvirt.Domain) (hypervisor.RunState, error) {
	state, _, err := o.lv.DomainGetState(dom, 0)
	if err != nil {
		return hypervisor.StateNoState, vmerr.Hypervisor("get state of "+dom.Name, err)
	}
	return hypervisor.RunState(state), nil
}

// managed returns the live record for name. The caller must hold the
// name lock if it intends to mutate.
func (o *Orchestrator) managed(name string) (*record.Record, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	rec, ok := o.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vmerr.ErrVMNotFound, name)
	}
	return rec, nil
}

// setState updates the cached record state and persists it to domain
// metadata. Persistence is best-effort: the hypervisor's run state is
// authoritative, so a failed metadata write costs nothing but a warning.
func (o *Orchestrator) setState(dom libvirt.Domain, rec *record.Record, state record.State) {
	o.mu.Lock()
	rec.State = state
	snapshot := rec.Clone()
	o.mu.Unlock()

	if err := o.meta.Save(dom, snapshot); err != nil {
		log.Printf("Warning: failed to persist record for %s: %v", rec.Name, err)
	}
}

// Get returns a snapshot of the record for name, with its run state
// freshly reconciled against the hypervisor.
func (o *Orchestrator) Get(name string) (*record.Record, error) {
	rec, err := o.managed(name)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if dom, lerr := o.lv.DomainLookupByName(name); lerr == nil {
		if st, serr := o.runState(dom); serr == nil {
			rec.State = lifecycleState(st)
		}
	}
	return rec.Clone(), nil
}
