package orchestrator

import (
	"context"
	"log"

	"github.com/digitalocean/go-libvirt"

	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// Destroy removes a VM entirely: force-stops it if active, undefines
// the domain, and deletes the working disk and any seed ISO. Destroying
// a VM that does not exist is a no-op.
func (o *Orchestrator) Destroy(ctx context.Context, name string) error {
	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	o.mu.RLock()
	_, exists := o.records[name]
	o.mu.RUnlock()
	if !exists {
		return nil
	}

	return o.destroyLocked(ctx, name)
}

// destroyLocked tears down a managed VM. The caller holds the name
// lock. Disk cleanup is best-effort; the domain operations are not.
func (o *Orchestrator) destroyLocked(ctx context.Context, name string) error {
	o.mu.Lock()
	rec := o.records[name]
	if rec != nil {
		rec.State = record.StateDestroying
	}
	o.mu.Unlock()

	dom, err := o.lv.DomainLookupByName(name)
	if err == nil {
		state, serr := o.runState(dom)
		if serr == nil && state.Active() {
			log.Printf("Force stopping VM '%s'...", name)
			if derr := o.lv.DomainDestroy(dom); derr != nil {
				return vmerr.Hypervisor("destroy domain "+name, derr)
			}
		}

		log.Printf("Undefining domain '%s'...", name)
		if uerr := o.lv.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram); uerr != nil {
			return vmerr.Hypervisor("undefine domain "+name, uerr)
		}
	}

	diskPath := naming.DiskPath(o.storageBase, name)
	if rec != nil && rec.DiskPath != "" {
		diskPath = rec.DiskPath
	}
	if err := o.prov.Delete(diskPath); err != nil {
		log.Printf("Warning: failed to delete disk %s: %v", diskPath, err)
	}
	isoPath := naming.CloudInitISOPath(o.storageBase, name)
	if err := o.prov.Delete(isoPath); err != nil {
		log.Printf("Warning: failed to delete seed iso %s: %v", isoPath, err)
	}

	o.mu.Lock()
	delete(o.records, name)
	o.mu.Unlock()

	log.Printf("VM '%s' destroyed", name)
	return nil
}
