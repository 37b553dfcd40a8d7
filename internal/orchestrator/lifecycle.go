package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/vmfinder/vmfinder/internal/hypervisor"
	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// shutdownPollInterval is how often Stop re-checks the run state while
// waiting for a graceful shutdown.
const shutdownPollInterval = 500 * time.Millisecond

// Start boots a stopped VM, or resumes a suspended one.
func (o *Orchestrator) Start(ctx context.Context, name string) error {
	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	rec, dom, state, err := o.lookup(name)
	if err != nil {
		return err
	}

	switch lifecycleState(state) {
	case record.StateStopped:
		log.Printf("Starting VM '%s'...", name)
		if err := o.lv.DomainCreate(dom); err != nil {
			return vmerr.Hypervisor("start domain "+name, err)
		}
	case record.StateSuspended:
		log.Printf("Resuming VM '%s'...", name)
		if err := o.lv.DomainResume(dom); err != nil {
			return vmerr.Hypervisor("resume domain "+name, err)
		}
	default:
		return fmt.Errorf("%w: cannot start vm %s while %s", vmerr.ErrInvalidState, name, state)
	}

	o.setState(dom, rec, record.StateRunning)
	return nil
}

// Stop powers off a running or suspended VM.
//
// Running guests get a graceful ACPI shutdown first; if the guest does
// not power off within the shutdown timeout it is force-destroyed.
// Suspended guests cannot process ACPI events and are force-destroyed
// directly.
func (o *Orchestrator) Stop(ctx context.Context, name string) error {
	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	rec, dom, state, err := o.lookup(name)
	if err != nil {
		return err
	}

	switch lifecycleState(state) {
	case record.StateRunning:
		if err := o.gracefulStop(ctx, dom); err != nil {
			return err
		}
	case record.StateSuspended:
		log.Printf("VM '%s' is suspended, forcing power-off...", name)
		if err := o.lv.DomainDestroy(dom); err != nil {
			return vmerr.Hypervisor("destroy domain "+name, err)
		}
	default:
		return fmt.Errorf("%w: cannot stop vm %s while %s", vmerr.ErrInvalidState, name, state)
	}

	o.setState(dom, rec, record.StateStopped)
	return nil
}

// gracefulStop asks the guest to shut down and waits for it, forcing
// power-off when the timeout expires.
func (o *Orchestrator) gracefulStop(ctx context.Context, dom libvirt.Domain) error {
	log.Printf("Requesting graceful shutdown of VM '%s'...", dom.Name)
	needsForce := false
	if err := o.lv.DomainShutdown(dom); err != nil {
		log.Printf("Warning: graceful shutdown request failed: %v", err)
		needsForce = true
	} else {
		log.Printf("Waiting up to %v for VM '%s' to shut down...", o.shutdownTimeout, dom.Name)
		waitCtx, cancel := context.WithTimeout(ctx, o.shutdownTimeout)
		defer cancel()

		ticker := time.NewTicker(shutdownPollInterval)
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-waitCtx.Done():
				log.Printf("Graceful shutdown of VM '%s' timed out", dom.Name)
				needsForce = true
				break wait
			case <-ticker.C:
				state, err := o.runState(dom)
				if err != nil {
					log.Printf("Warning: failed to check shutdown progress: %v", err)
					needsForce = true
					break wait
				}
				if state == hypervisor.StateShutoff {
					log.Printf("VM '%s' shut down gracefully", dom.Name)
					break wait
				}
			}
		}
	}

	if needsForce {
		state, err := o.runState(dom)
		if err != nil {
			return err
		}
		if state.Active() {
			log.Printf("Force stopping VM '%s'...", dom.Name)
			if err := o.lv.DomainDestroy(dom); err != nil {
				return vmerr.Hypervisor("destroy domain "+dom.Name, err)
			}
			state, err = o.runState(dom)
			if err != nil {
				return err
			}
			if state.Active() {
				return fmt.Errorf("%w: vm %s still active after forced power-off", vmerr.ErrTimeout, dom.Name)
			}
		}
	}
	return nil
}

// Suspend pauses a running VM, keeping its guest memory.
func (o *Orchestrator) Suspend(ctx context.Context, name string) error {
	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	rec, dom, state, err := o.lookup(name)
	if err != nil {
		return err
	}

	if lifecycleState(state) != record.StateRunning {
		return fmt.Errorf("%w: cannot suspend vm %s while %s", vmerr.ErrInvalidState, name, state)
	}

	log.Printf("Suspending VM '%s'...", name)
	if err := o.lv.DomainSuspend(dom); err != nil {
		return vmerr.Hypervisor("suspend domain "+name, err)
	}

	o.setState(dom, rec, record.StateSuspended)
	return nil
}

// Resume unpauses a suspended VM.
func (o *Orchestrator) Resume(ctx context.Context, name string) error {
	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	rec, dom, state, err := o.lookup(name)
	if err != nil {
		return err
	}

	if lifecycleState(state) != record.StateSuspended {
		return fmt.Errorf("%w: cannot resume vm %s while %s", vmerr.ErrInvalidState, name, state)
	}

	log.Printf("Resuming VM '%s'...", name)
	if err := o.lv.DomainResume(dom); err != nil {
		return vmerr.Hypervisor("resume domain "+name, err)
	}

	o.setState(dom, rec, record.StateRunning)
	return nil
}

// ResizeDisk grows a stopped VM's working disk to sizeGB.
func (o *Orchestrator) ResizeDisk(ctx context.Context, name string, sizeGB int) error {
	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	rec, dom, state, err := o.lookup(name)
	if err != nil {
		return err
	}

	if lifecycleState(state) != record.StateStopped {
		return fmt.Errorf("%w: cannot resize disk of vm %s while %s", vmerr.ErrInvalidState, name, state)
	}

	o.mu.RLock()
	currentGB := rec.DiskGB
	diskPath := rec.DiskPath
	o.mu.RUnlock()

	if err := o.prov.Resize(ctx, diskPath, currentGB, sizeGB); err != nil {
		return err
	}

	o.mu.Lock()
	rec.DiskGB = sizeGB
	o.mu.Unlock()
	o.setState(dom, rec, record.StateStopped)
	return nil
}

// lookup resolves name to its record, libvirt domain, and current run
// state. The caller holds the name lock.
func (o *Orchestrator) lookup(name string) (*record.Record, libvirt.Domain, hypervisor.RunState, error) {
	rec, err := o.managed(name)
	if err != nil {
		return nil, libvirt.Domain{}, hypervisor.StateNoState, err
	}

	dom, err := o.lv.DomainLookupByName(name)
	if err != nil {
		return nil, libvirt.Domain{}, hypervisor.StateNoState, vmerr.Hypervisor("lookup domain "+name, err)
	}

	state, err := o.runState(dom)
	if err != nil {
		return nil, libvirt.Domain{}, hypervisor.StateNoState, err
	}

	return rec, dom, state, nil
}
