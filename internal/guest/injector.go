// Package guest applies out-of-band changes to guests that are powered
// off. The only supported channel is cloud-init: a NoCloud seed ISO is
// attached to the stopped domain and the guest applies it on next boot.
// The guest filesystem is never touched from the host.
package guest

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/vmfinder/vmfinder/internal/cloudinit"
	"github.com/vmfinder/vmfinder/internal/domain"
	"github.com/vmfinder/vmfinder/internal/hypervisor"
	"github.com/vmfinder/vmfinder/internal/metadata"
	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/template"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// Client is the slice of libvirt the injector needs. Satisfied by
// *libvirt.Libvirt; mocked in tests.
type Client interface {
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error)
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	DomainDefineXML(xml string) (libvirt.Domain, error)
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// TemplateStore resolves the VM's template so the injector can check
// cloud-init support and pick the default account.
type TemplateStore interface {
	Get(name string) (*template.Template, error)
}

// Injector performs credential injection on stopped VMs.
type Injector struct {
	lv          Client
	meta        *metadata.Store
	templates   TemplateStore
	storageBase string
}

// New creates an injector writing seed ISOs under storageBase.
func New(lv Client, templates TemplateStore, storageBase string) *Injector {
	return &Injector{
		lv:          lv,
		meta:        metadata.NewStore(lv),
		templates:   templates,
		storageBase: storageBase,
	}
}

// SetPassword stages a password reset for username on a stopped VM.
//
// The sequence: verify the VM is stopped and its template supports
// cloud-init, build a fresh NoCloud seed ISO, write it next to the
// working disk, and redefine the domain with the ISO attached as a
// cdrom. The password takes effect on the next boot, when cloud-init
// picks up the new instance-id.
//
// An empty username falls back to the template's default account.
//
// The stopped-state check is only valid while the caller serializes
// this call against lifecycle operations on the same VM; the
// orchestrator holds its per-name lock around it.
func (inj *Injector) SetPassword(ctx context.Context, vmName, username, password string) error {
	dom, err := inj.lv.DomainLookupByName(vmName)
	if err != nil {
		return fmt.Errorf("%w: %s", vmerr.ErrVMNotFound, vmName)
	}

	state, _, err := inj.lv.DomainGetState(dom, 0)
	if err != nil {
		return vmerr.Hypervisor("get state of "+vmName, err)
	}
	if hypervisor.RunState(state).Active() {
		return fmt.Errorf("%w: stop vm %s before setting a password", vmerr.ErrVMRunning, vmName)
	}

	rec, err := inj.meta.Load(dom)
	if err != nil {
		return fmt.Errorf("%w: domain %s is not managed", vmerr.ErrVMNotFound, vmName)
	}

	tpl, err := inj.templates.Get(rec.Template)
	if err != nil {
		return err
	}
	if !tpl.CloudImageSupport {
		return fmt.Errorf("%w: template %s does not run cloud-init", vmerr.ErrGuestFSUnsupported, tpl.Name)
	}

	if username == "" {
		username = tpl.DefaultUser
	}
	if username == "" {
		username = "root"
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	iso, err := cloudinit.PasswordSeedISO(vmName, username, password)
	if err != nil {
		return err
	}

	isoPath := naming.CloudInitISOPath(inj.storageBase, vmName)
	log.Printf("Writing seed ISO %s...", isoPath)
	if err := os.WriteFile(isoPath, iso, 0o644); err != nil {
		return fmt.Errorf("failed to write seed iso: %w", err)
	}

	if err := inj.attachSeedISO(dom, isoPath); err != nil {
		return err
	}

	log.Printf("Password for %s@%s staged; it applies on next boot", username, vmName)
	return nil
}

// attachSeedISO redefines the domain with the seed ISO as its cdrom,
// replacing any previously attached seed.
func (inj *Injector) attachSeedISO(dom libvirt.Domain, isoPath string) error {
	xmlDesc, err := inj.lv.DomainGetXMLDesc(dom, libvirt.DomainXMLInactive)
	if err != nil {
		return vmerr.Hypervisor("read domain XML for "+dom.Name, err)
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(xmlDesc); err != nil {
		return fmt.Errorf("failed to parse domain XML for %s: %w", dom.Name, err)
	}
	if def.Devices == nil {
		def.Devices = &libvirtxml.DomainDeviceList{}
	}

	disks := def.Devices.Disks[:0]
	for _, d := range def.Devices.Disks {
		if d.Device == "cdrom" {
			continue
		}
		disks = append(disks, d)
	}
	def.Devices.Disks = append(disks, domain.CloudInitDisk(isoPath))

	newXML, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal domain XML for %s: %w", dom.Name, err)
	}

	if _, err := inj.lv.DomainDefineXML(newXML); err != nil {
		return vmerr.Hypervisor("redefine domain "+dom.Name, err)
	}
	return nil
}
