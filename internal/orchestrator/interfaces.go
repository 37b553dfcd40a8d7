package orchestrator

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/vmfinder/vmfinder/internal/template"
)

// Hypervisor defines the libvirt control-plane operations the
// orchestrator needs.
//
// In production this is satisfied by *libvirt.Libvirt directly.
// In tests it is satisfied by mock implementations.
type Hypervisor interface {
	// DomainLookupByName looks up a domain by name.
	DomainLookupByName(name string) (libvirt.Domain, error)

	// DomainDefineXML registers a persistent domain definition.
	DomainDefineXML(xml string) (libvirt.Domain, error)

	// DomainUndefineFlags removes a domain definition.
	DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error

	// DomainCreate starts a defined domain.
	DomainCreate(dom libvirt.Domain) error

	// DomainShutdown requests a graceful guest shutdown.
	DomainShutdown(dom libvirt.Domain) error

	// DomainDestroy force-stops a domain.
	DomainDestroy(dom libvirt.Domain) error

	// DomainSuspend pauses a running domain, keeping guest memory.
	DomainSuspend(dom libvirt.Domain) error

	// DomainResume unpauses a suspended domain.
	DomainResume(dom libvirt.Domain) error

	// DomainGetState returns the domain's run state.
	DomainGetState(dom libvirt.Domain, flags uint32) (state int32, reason int32, err error)

	// ConnectListAllDomains lists defined and running domains.
	ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)

	// DomainSetMetadata / DomainGetMetadata carry the persisted VM
	// record (see internal/metadata).
	DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error)
}

// Provisioner defines the working-disk operations the orchestrator
// needs.
//
// In production this is satisfied by *disk.Provisioner.
type Provisioner interface {
	// Provision clones baseImage (or creates an empty disk) at
	// targetPath, sized to sizeGB.
	Provision(ctx context.Context, baseImage, targetPath string, sizeGB int) error

	// Resize grows an existing disk. Shrinking is refused.
	Resize(ctx context.Context, path string, currentGB, sizeGB int) error

	// Delete removes a disk; absent disks are a no-op.
	Delete(path string) error
}

// TemplateStore resolves template names to templates.
//
// In production this is satisfied by *template.Registry.
type TemplateStore interface {
	Get(name string) (*template.Template, error)
}

// CredentialInjector applies out-of-band credential changes to stopped
// guests.
//
// In production this is satisfied by *guest.Injector.
type CredentialInjector interface {
	SetPassword(ctx context.Context, name, username, password string) error
}
