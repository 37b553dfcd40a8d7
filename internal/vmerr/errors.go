// Package vmerr defines the error taxonomy shared by the vmfinder
// lifecycle components. Callers classify failures with errors.Is against
// the sentinels below; the CLI maps them to exit messages.
package vmerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNameConflict is returned when a VM with the requested name
	// already exists and force was not requested.
	ErrNameConflict = errors.New("vm name already in use")

	// ErrInvalidState is returned when a lifecycle operation is requested
	// from a state it is not legal in (e.g. start while running).
	ErrInvalidState = errors.New("operation not valid in current vm state")

	// ErrInvalidSpec is returned by the domain builder when resource
	// parameters fail validation.
	ErrInvalidSpec = errors.New("invalid vm specification")

	// ErrInsufficientSpace is returned when the storage base does not
	// have room for the requested disk.
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrCopyFailed is returned when cloning or resizing a working disk
	// fails.
	ErrCopyFailed = errors.New("disk copy failed")

	// ErrAddressUnresolved is returned when no guest address can be
	// determined within the retry window.
	ErrAddressUnresolved = errors.New("vm address could not be resolved")

	// ErrVMNotRunning is returned by session operations that require a
	// running guest.
	ErrVMNotRunning = errors.New("vm is not running")

	// ErrVMRunning is returned by operations that must not touch a live
	// guest's disk.
	ErrVMRunning = errors.New("vm is running")

	// ErrGuestFSUnsupported is returned when out-of-band guest
	// modification is not supported for the VM's template.
	ErrGuestFSUnsupported = errors.New("guest filesystem not supported")

	// ErrTimeout is returned when a bounded operation exceeds its
	// deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrHypervisor wraps any failure surfaced by the libvirt control
	// plane.
	ErrHypervisor = errors.New("hypervisor error")

	// ErrTemplateNotFound is returned when a named template does not
	// exist in the registry.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrVMNotFound is returned when an operation names a VM that is not
	// managed.
	ErrVMNotFound = errors.New("vm not found")
)

// Hypervisor wraps err so it matches ErrHypervisor while preserving the
// underlying libvirt failure for logs.
func Hypervisor(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrHypervisor, op, err)
}
