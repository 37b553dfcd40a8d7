package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	"github.com/vmfinder/vmfinder/internal/domain"
	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/template"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// CreateRequest carries the parameters for a new VM.
type CreateRequest struct {
	Name     string
	Template string

	VCPUs     int
	MemoryMiB int

	// DiskGB is the requested working disk size. Zero means use the
	// template default; smaller requests are rounded up to it.
	DiskGB int

	// Network is the libvirt network name; empty means the default
	// network.
	Network string

	// Force destroys any existing VM of the same name before creating.
	Force bool
}

// Create provisions a new VM and leaves it defined and stopped.
//
// The full sequence:
//  1. Validate the name and resolve the template
//  2. Reject (or, with Force, destroy) an existing VM of the same name
//  3. Clone the working disk from the template base image
//  4. Build and define the domain
//  5. Persist the record in domain metadata
//
// Any failure after step 2 rolls back everything created so far; a
// failed create leaves no record, no domain, and no disk behind.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*record.Record, error) {
	if err := naming.ValidateName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", vmerr.ErrInvalidSpec, err)
	}

	tpl, err := o.templates.Get(req.Template)
	if err != nil {
		return nil, err
	}

	lock := o.locks.acquire(req.Name)
	lock.Lock()
	defer o.locks.release(req.Name, lock)

	exists := false
	o.mu.RLock()
	_, exists = o.records[req.Name]
	o.mu.RUnlock()
	if !exists {
		// The name may be taken by a domain defined outside vmfinder.
		if _, lerr := o.lv.DomainLookupByName(req.Name); lerr == nil {
			return nil, fmt.Errorf("%w: domain %q exists outside vmfinder", vmerr.ErrNameConflict, req.Name)
		}
	}

	if exists {
		if !req.Force {
			return nil, fmt.Errorf("%w: %q", vmerr.ErrNameConflict, req.Name)
		}
		log.Printf("VM '%s' exists, destroying before re-create (force)...", req.Name)
		if err := o.destroyLocked(ctx, req.Name); err != nil {
			return nil, fmt.Errorf("force re-create %s: %w", req.Name, err)
		}
	}

	diskGB := req.DiskGB
	if diskGB < tpl.DefaultDiskGB {
		diskGB = tpl.DefaultDiskGB
	}

	rec := &record.Record{
		Name:      req.Name,
		Template:  tpl.Name,
		VCPUs:     req.VCPUs,
		MemoryMiB: req.MemoryMiB,
		DiskGB:    diskGB,
		Network:   req.Network,
		State:     record.StateCreating,
		DiskPath:  naming.DiskPath(o.storageBase, req.Name),
		CreatedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	o.records[req.Name] = rec
	o.mu.Unlock()

	if err := o.buildLocked(ctx, rec, tpl); err != nil {
		o.mu.Lock()
		rec.State = record.StateFailed
		delete(o.records, req.Name)
		o.mu.Unlock()
		return nil, fmt.Errorf("create vm %s: %w", req.Name, err)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	return rec.Clone(), nil
}

// buildLocked performs the resource-creating steps of Create. The
// caller holds the name lock. On error every resource created so far is
// rolled back, best-effort, in reverse order.
func (o *Orchestrator) buildLocked(ctx context.Context, rec *record.Record, tpl *template.Template) (err error) {
	diskCreated := false
	domainDefined := false
	var dom libvirt.Domain

	defer func() {
		if err == nil {
			return
		}
		log.Printf("Create of VM '%s' failed, rolling back...", rec.Name)
		if domainDefined {
			if uerr := o.lv.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram); uerr != nil {
				log.Printf("Warning: rollback undefine of %s failed: %v", rec.Name, uerr)
			}
		}
		if diskCreated {
			if derr := o.prov.Delete(rec.DiskPath); derr != nil {
				log.Printf("Warning: rollback disk delete of %s failed: %v", rec.DiskPath, derr)
			}
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	log.Printf("Provisioning %d GB working disk for VM '%s'...", rec.DiskGB, rec.Name)
	if err = o.prov.Provision(ctx, tpl.BaseImage, rec.DiskPath, rec.DiskGB); err != nil {
		return err
	}
	diskCreated = true

	if err = ctx.Err(); err != nil {
		return err
	}

	domUUID := uuid.NewString()
	spec := &domain.Spec{
		Name:      rec.Name,
		UUID:      domUUID,
		VCPUs:     rec.VCPUs,
		MemoryMiB: rec.MemoryMiB,
		DiskPath:  rec.DiskPath,
		Network:   rec.Network,
		Arch:      tpl.Arch,
	}

	var xml string
	if xml, err = o.builder.Build(spec); err != nil {
		return err
	}

	log.Printf("Defining domain for VM '%s'...", rec.Name)
	if dom, err = o.lv.DomainDefineXML(xml); err != nil {
		err = vmerr.Hypervisor("define domain "+rec.Name, err)
		return err
	}
	domainDefined = true

	o.mu.Lock()
	rec.DomainUUID = domUUID
	rec.State = record.StateStopped
	snapshot := rec.Clone()
	o.mu.Unlock()

	if err = o.meta.Save(dom, snapshot); err != nil {
		return err
	}

	log.Printf("VM '%s' created successfully", rec.Name)
	return nil
}
