package domain

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"

	"libvirt.org/go/libvirtxml"

	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// fakeStat reports the given paths as existing.
func fakeStat(existing ...string) func(string) (os.FileInfo, error) {
	return func(path string) (os.FileInfo, error) {
		for _, p := range existing {
			if p == path {
				return nil, nil
			}
		}
		return nil, fs.ErrNotExist
	}
}

func testSpec() *Spec {
	return &Spec{
		Name:      "test-vm",
		VCPUs:     2,
		MemoryMiB: 2048,
		DiskPath:  "/var/lib/vmfinder/disks/test-vm.qcow2",
	}
}

func testBuilder() *Builder {
	return &Builder{Stat: fakeStat(
		"/var/lib/vmfinder/disks/test-vm.qcow2",
		"/var/lib/vmfinder/disks/test-vm-cloudinit.iso",
	)}
}

func TestBuild_Success(t *testing.T) {
	b := testBuilder()

	xml, err := b.Build(testSpec())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var dom libvirtxml.Domain
	if err := dom.Unmarshal(xml); err != nil {
		t.Fatalf("generated XML does not parse: %v", err)
	}

	if dom.Type != "kvm" {
		t.Errorf("domain type = %q, want kvm", dom.Type)
	}
	if dom.Name != "test-vm" {
		t.Errorf("domain name = %q, want test-vm", dom.Name)
	}
	if dom.UUID == "" {
		t.Error("domain UUID not generated")
	}
	if dom.Memory == nil || dom.Memory.Value != 2048 || dom.Memory.Unit != "MiB" {
		t.Errorf("memory = %+v, want 2048 MiB", dom.Memory)
	}
	if dom.VCPU == nil || dom.VCPU.Value != 2 || dom.VCPU.Placement != "static" {
		t.Errorf("vcpu = %+v, want 2 static", dom.VCPU)
	}
	if len(dom.Devices.Disks) != 1 {
		t.Fatalf("got %d disks, want 1", len(dom.Devices.Disks))
	}
	disk := dom.Devices.Disks[0]
	if disk.Source == nil || disk.Source.File == nil || disk.Source.File.File != "/var/lib/vmfinder/disks/test-vm.qcow2" {
		t.Errorf("disk source = %+v, want working disk path", disk.Source)
	}
	if disk.Target == nil || disk.Target.Dev != "vda" || disk.Target.Bus != "virtio" {
		t.Errorf("disk target = %+v, want vda/virtio", disk.Target)
	}
	if len(dom.Devices.Interfaces) != 1 {
		t.Fatalf("got %d interfaces, want 1", len(dom.Devices.Interfaces))
	}
	iface := dom.Devices.Interfaces[0]
	if iface.Source == nil || iface.Source.Network == nil || iface.Source.Network.Network != DefaultNetwork {
		t.Errorf("interface source = %+v, want %q network", iface.Source, DefaultNetwork)
	}
	if len(dom.Devices.Consoles) != 1 {
		t.Errorf("got %d consoles, want 1 pty console", len(dom.Devices.Consoles))
	}
}

func TestBuild_PreservesUUID(t *testing.T) {
	b := testBuilder()
	spec := testSpec()
	spec.UUID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"

	xml, err := b.Build(spec)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(xml, spec.UUID) {
		t.Error("provided UUID not preserved in domain XML")
	}
}

func TestBuild_CustomNetwork(t *testing.T) {
	b := testBuilder()
	spec := testSpec()
	spec.Network = "lab-net"

	xml, err := b.Build(spec)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var dom libvirtxml.Domain
	if err := dom.Unmarshal(xml); err != nil {
		t.Fatalf("generated XML does not parse: %v", err)
	}
	if got := dom.Devices.Interfaces[0].Source.Network.Network; got != "lab-net" {
		t.Errorf("network = %q, want lab-net", got)
	}
}

func TestBuild_WithCloudInitISO(t *testing.T) {
	b := testBuilder()
	spec := testSpec()
	spec.CloudInitISO = "/var/lib/vmfinder/disks/test-vm-cloudinit.iso"

	xml, err := b.Build(spec)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var dom libvirtxml.Domain
	if err := dom.Unmarshal(xml); err != nil {
		t.Fatalf("generated XML does not parse: %v", err)
	}
	if len(dom.Devices.Disks) != 2 {
		t.Fatalf("got %d disks, want working disk + cdrom", len(dom.Devices.Disks))
	}
	cdrom := dom.Devices.Disks[1]
	if cdrom.Device != "cdrom" {
		t.Errorf("second disk device = %q, want cdrom", cdrom.Device)
	}
	if cdrom.ReadOnly == nil {
		t.Error("cdrom not marked read-only")
	}
}

func TestBuild_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"empty name", func(s *Spec) { s.Name = "" }},
		{"bad name", func(s *Spec) { s.Name = "Bad Name!" }},
		{"zero vcpus", func(s *Spec) { s.VCPUs = 0 }},
		{"negative vcpus", func(s *Spec) { s.VCPUs = -1 }},
		{"memory below floor", func(s *Spec) { s.MemoryMiB = MinMemoryMiB - 1 }},
		{"empty disk path", func(s *Spec) { s.DiskPath = "" }},
		{"missing disk", func(s *Spec) { s.DiskPath = "/nonexistent.qcow2" }},
		{"missing iso", func(s *Spec) { s.CloudInitISO = "/nonexistent.iso" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBuilder()
			spec := testSpec()
			tt.mutate(spec)

			_, err := b.Build(spec)
			if !errors.Is(err, vmerr.ErrInvalidSpec) {
				t.Errorf("Build() error = %v, want ErrInvalidSpec", err)
			}
		})
	}
}

func TestBuild_MemoryFloorBoundary(t *testing.T) {
	b := testBuilder()
	spec := testSpec()
	spec.MemoryMiB = MinMemoryMiB

	if _, err := b.Build(spec); err != nil {
		t.Errorf("Build(memory=%d) error = %v, want nil", MinMemoryMiB, err)
	}
}
