// Package naming provides the naming conventions shared by the vmfinder
// components: VM name validation and the per-VM file layout under the
// storage directory.
//
// These rules are stable across components so that the provisioner, the
// orchestrator, and the guest injector always agree on where a VM's
// artifacts live.
package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// namePattern accepts lowercase names only: start and end with a
// lowercase letter or digit, hyphens and underscores allowed in
// between. The CLI lowercases user input before validating.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// MaxNameLength bounds VM names well under libvirt's domain name limit.
const MaxNameLength = 64

// ValidateName checks that name is usable as a VM (and libvirt domain)
// name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("vm name must not be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("vm name %q exceeds %d characters", name, MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("vm name must start and end with a lowercase alphanumeric and contain only alphanumerics, hyphens, or underscores, got %q", name)
	}
	return nil
}

// DiskFileName returns the working disk file name for a VM.
// Format: {vmName}.qcow2
func DiskFileName(vmName string) string {
	return fmt.Sprintf("%s.qcow2", vmName)
}

// DiskPath returns the full working disk path for a VM under storageBase.
func DiskPath(storageBase, vmName string) string {
	return filepath.Join(storageBase, DiskFileName(vmName))
}

// CloudInitISOName returns the file name of the seed ISO used for
// out-of-band credential injection.
// Format: {vmName}-cloudinit.iso
func CloudInitISOName(vmName string) string {
	return fmt.Sprintf("%s-cloudinit.iso", vmName)
}

// CloudInitISOPath returns the full seed ISO path for a VM under
// storageBase.
func CloudInitISOPath(storageBase, vmName string) string {
	return filepath.Join(storageBase, CloudInitISOName(vmName))
}
