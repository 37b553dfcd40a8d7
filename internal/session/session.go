// Package session opens interactive access paths into running VMs: the
// serial console and ssh. It never mutates lifecycle state; a VM that
// is not running is reported, not started.
package session

import (
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/vmfinder/vmfinder/internal/hypervisor"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

const (
	// DefaultAddressWindow is how long ResolveAddress keeps retrying the
	// lease lookup. Fresh boots can take a while to DHCP.
	DefaultAddressWindow = 45 * time.Second

	// DefaultAddressPoll is the retry interval inside the window.
	DefaultAddressPoll = 2 * time.Second
)

// Client is the slice of libvirt the session layer needs. Satisfied by
// *libvirt.Libvirt; mocked in tests.
type Client interface {
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error)
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	DomainInterfaceAddresses(dom libvirt.Domain, source uint32, flags uint32) ([]libvirt.DomainInterface, error)
}

// Layer provides console and ssh access to running VMs.
type Layer struct {
	lv Client

	// AddressWindow and AddressPoll bound the guest address lookup.
	// Zero values fall back to the defaults.
	AddressWindow time.Duration
	AddressPoll   time.Duration
}

// New creates a session layer over the given libvirt client.
func New(lv Client) *Layer {
	return &Layer{
		lv:            lv,
		AddressWindow: DefaultAddressWindow,
		AddressPoll:   DefaultAddressPoll,
	}
}

// runningDomain resolves name to its domain and verifies the guest is
// actually running.
func (s *Layer) runningDomain(name string) (libvirt.Domain, error) {
	dom, err := s.lv.DomainLookupByName(name)
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("%w: %s", vmerr.ErrVMNotFound, name)
	}

	state, _, err := s.lv.DomainGetState(dom, 0)
	if err != nil {
		return libvirt.Domain{}, vmerr.Hypervisor("get state of "+name, err)
	}

	rs := hypervisor.RunState(state)
	if rs != hypervisor.StateRunning && rs != hypervisor.StateBlocked {
		return libvirt.Domain{}, fmt.Errorf("%w: vm %s is %s", vmerr.ErrVMNotRunning, name, rs)
	}

	return dom, nil
}
