// Package domain builds libvirt domain XML from validated VM resource
// parameters. Building is side-effect free; registering the definition
// with the hypervisor is the orchestrator's job.
package domain

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

const (
	// MinMemoryMiB is the smallest guest memory allocation accepted.
	MinMemoryMiB = 128

	// DefaultNetwork is the libvirt network VMs attach to when the
	// request does not name one.
	DefaultNetwork = "default"
)

// Spec carries the resource parameters a domain is built from.
type Spec struct {
	Name      string
	UUID      string // generated when empty; preserved across redefines
	VCPUs     int
	MemoryMiB int

	// DiskPath is the VM's working disk. It must exist by build time.
	DiskPath string

	// Network is the libvirt network name.
	Network string

	// Arch is the guest architecture; defaults to x86_64.
	Arch string

	// CloudInitISO optionally attaches a NoCloud seed ISO as a cdrom.
	CloudInitISO string
}

// Builder produces domain XML from Specs.
//
// Stat is the file-existence probe used to validate disk paths; tests
// substitute it. The zero value is not usable, construct with New.
type Builder struct {
	Stat func(string) (os.FileInfo, error)
}

// New returns a Builder validating disk paths against the real
// filesystem.
func New() *Builder {
	return &Builder{Stat: os.Stat}
}

// Validate checks the spec without building anything.
func (b *Builder) Validate(spec *Spec) error {
	if err := naming.ValidateName(spec.Name); err != nil {
		return fmt.Errorf("%w: %v", vmerr.ErrInvalidSpec, err)
	}
	if spec.VCPUs < 1 {
		return fmt.Errorf("%w: vcpus must be >= 1, got %d", vmerr.ErrInvalidSpec, spec.VCPUs)
	}
	if spec.MemoryMiB < MinMemoryMiB {
		return fmt.Errorf("%w: memory must be >= %d MiB, got %d", vmerr.ErrInvalidSpec, MinMemoryMiB, spec.MemoryMiB)
	}
	if spec.DiskPath == "" {
		return fmt.Errorf("%w: disk path is required", vmerr.ErrInvalidSpec)
	}
	if _, err := b.Stat(spec.DiskPath); err != nil {
		return fmt.Errorf("%w: disk path %s: %v", vmerr.ErrInvalidSpec, spec.DiskPath, err)
	}
	if spec.CloudInitISO != "" {
		if _, err := b.Stat(spec.CloudInitISO); err != nil {
			return fmt.Errorf("%w: cloud-init iso %s: %v", vmerr.ErrInvalidSpec, spec.CloudInitISO, err)
		}
	}
	return nil
}

// Build validates spec and returns the domain XML for it.
func (b *Builder) Build(spec *Spec) (string, error) {
	if err := b.Validate(spec); err != nil {
		return "", err
	}

	domUUID := spec.UUID
	if domUUID == "" {
		domUUID = uuid.NewString()
	}
	arch := spec.Arch
	if arch == "" {
		arch = "x86_64"
	}
	network := spec.Network
	if network == "" {
		network = DefaultNetwork
	}

	zero := uint(0)
	dom := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		UUID: domUUID,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(spec.MemoryMiB),
			Unit:  "MiB",
		},
		CurrentMemory: &libvirtxml.DomainCurrentMemory{
			Value: uint(spec.MemoryMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(spec.VCPUs),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch: arch,
				Type: "hvm",
			},
			BootDevices: []libvirtxml.DomainBootDevice{
				{Dev: "hd"},
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
			PAE:  &libvirtxml.DomainFeature{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
			Model: &libvirtxml.DomainCPUModel{
				Fallback: "allow",
			},
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "restart",
		Devices: &libvirtxml.DomainDeviceList{
			Disks: []libvirtxml.DomainDisk{
				{
					Device: "disk",
					Driver: &libvirtxml.DomainDiskDriver{
						Name: "qemu",
						Type: "qcow2",
					},
					Source: &libvirtxml.DomainDiskSource{
						File: &libvirtxml.DomainDiskSourceFile{
							File: spec.DiskPath,
						},
					},
					Target: &libvirtxml.DomainDiskTarget{
						Dev: "vda",
						Bus: "virtio",
					},
				},
			},
			Interfaces: []libvirtxml.DomainInterface{
				{
					Source: &libvirtxml.DomainInterfaceSource{
						Network: &libvirtxml.DomainInterfaceSourceNetwork{
							Network: network,
						},
					},
					Model: &libvirtxml.DomainInterfaceModel{
						Type: "virtio",
					},
				},
			},
			Serials: []libvirtxml.DomainSerial{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainSerialTarget{
						Port: &zero,
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
					Target: &libvirtxml.DomainConsoleTarget{
						Type: "serial",
						Port: &zero,
					},
				},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						Port:     -1,
						AutoPort: "yes",
						Listen:   "127.0.0.1",
					},
				},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
		},
	}

	if spec.CloudInitISO != "" {
		dom.Devices.Disks = append(dom.Devices.Disks, CloudInitDisk(spec.CloudInitISO))
	}

	xml, err := dom.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

// CloudInitDisk returns the cdrom device attaching a NoCloud seed ISO.
// The guest injector appends it to existing domain definitions.
func CloudInitDisk(isoPath string) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "cdrom",
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "qemu",
			Type: "raw",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{
				File: isoPath,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "sda",
			Bus: "sata",
		},
		ReadOnly: &libvirtxml.DomainDiskReadOnly{},
	}
}
