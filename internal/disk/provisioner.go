// Package disk provides the working-disk provisioner. It clones a
// template's base image into a per-VM qcow2 disk with qemu-img and grows
// it to the requested capacity.
//
// A failed provision never leaves a partial file behind: the target path
// is removed on any error after creation started.
package disk

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/vmfinder/vmfinder/internal/vmerr"
)

const (
	// DefaultStorageBase is the default directory for VM working disks.
	DefaultStorageBase = "/var/lib/vmfinder/disks"

	// QemuUser owns disk files when present on the host so libvirt can
	// open them.
	QemuUser = "qemu"

	dirPermissions  = 0o755
	filePermissions = 0o644
)

// Provisioner creates and deletes per-VM working disks under a storage
// base directory.
type Provisioner struct {
	storageBase string

	// qemuUID/qemuGID are -1 when no qemu user exists on the host, in
	// which case ownership is left alone.
	qemuUID int
	qemuGID int
}

// NewProvisioner creates a provisioner rooted at storageBase, creating
// the directory if needed.
func NewProvisioner(storageBase string) (*Provisioner, error) {
	if storageBase == "" {
		storageBase = DefaultStorageBase
	}
	if err := os.MkdirAll(storageBase, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", storageBase, err)
	}

	p := &Provisioner{storageBase: storageBase, qemuUID: -1, qemuGID: -1}

	qemuUser, err := user.Lookup(QemuUser)
	if err == nil {
		if uid, err := strconv.Atoi(qemuUser.Uid); err == nil {
			p.qemuUID = uid
		}
		if gid, err := strconv.Atoi(qemuUser.Gid); err == nil {
			p.qemuGID = gid
		}
	}

	return p, nil
}

// StorageBase returns the directory working disks are created under.
func (p *Provisioner) StorageBase() string {
	return p.storageBase
}

// Provision creates the working disk at targetPath. When baseImage is
// non-empty the disk is a qcow2 overlay backed by it, so the base image
// is never modified; otherwise an empty disk is created. The disk is
// sized to sizeGB.
//
// Fails with ErrInsufficientSpace when the storage filesystem cannot
// hold sizeGB, and ErrCopyFailed when qemu-img fails. On failure no file
// remains at targetPath.
func (p *Provisioner) Provision(ctx context.Context, baseImage, targetPath string, sizeGB int) error {
	if sizeGB <= 0 {
		return fmt.Errorf("%w: disk size must be > 0 GiB, got %d", vmerr.ErrInvalidSpec, sizeGB)
	}

	if err := p.checkSpace(sizeGB); err != nil {
		return err
	}

	if baseImage != "" {
		if _, err := os.Stat(baseImage); err != nil {
			return fmt.Errorf("%w: base image %s: %v", vmerr.ErrCopyFailed, baseImage, err)
		}
	}

	var cmd *exec.Cmd
	if baseImage != "" {
		cmd = exec.CommandContext(ctx,
			"qemu-img", "create",
			"-f", "qcow2",
			"-b", baseImage,
			"-F", "qcow2",
			targetPath,
			fmt.Sprintf("%dG", sizeGB),
		)
	} else {
		cmd = exec.CommandContext(ctx,
			"qemu-img", "create",
			"-f", "qcow2",
			targetPath,
			fmt.Sprintf("%dG", sizeGB),
		)
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		p.removeTarget(targetPath)
		if ctx.Err() != nil {
			return fmt.Errorf("%w: disk provisioning cancelled: %v", vmerr.ErrCopyFailed, ctx.Err())
		}
		return fmt.Errorf("%w: qemu-img create %s: %v (output: %s)", vmerr.ErrCopyFailed, targetPath, err, string(output))
	}

	if err := p.setOwnership(targetPath); err != nil {
		p.removeTarget(targetPath)
		return err
	}

	return nil
}

// Resize grows the disk at path to sizeGB. Shrinking is refused; disks
// only ever grow across a VM's lifetime.
func (p *Provisioner) Resize(ctx context.Context, path string, currentGB, sizeGB int) error {
	if sizeGB < currentGB {
		return fmt.Errorf("%w: cannot shrink disk from %dGiB to %dGiB", vmerr.ErrInvalidSpec, currentGB, sizeGB)
	}
	if sizeGB == currentGB {
		return nil
	}

	cmd := exec.CommandContext(ctx, "qemu-img", "resize", path, fmt.Sprintf("%dG", sizeGB))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: qemu-img resize %s: %v (output: %s)", vmerr.ErrCopyFailed, path, err, string(output))
	}

	return nil
}

// Delete removes the disk at path. Deleting an absent disk is a no-op.
func (p *Provisioner) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete disk %s: %w", path, err)
	}
	return nil
}

// checkSpace verifies the storage filesystem has room for sizeGB.
func (p *Provisioner) checkSpace(sizeGB int) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(p.storageBase, &stat); err != nil {
		return fmt.Errorf("failed to get filesystem stats for %s: %w", p.storageBase, err)
	}

	availableGB := (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024 * 1024)
	if uint64(sizeGB) > availableGB {
		return fmt.Errorf("%w: need %dGiB, have %dGiB available in %s",
			vmerr.ErrInsufficientSpace, sizeGB, availableGB, p.storageBase)
	}

	return nil
}

func (p *Provisioner) setOwnership(path string) error {
	if err := os.Chmod(path, filePermissions); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	// Without a qemu user (developer machines, CI) libvirt typically runs
	// as the invoking user anyway.
	if p.qemuUID < 0 {
		return nil
	}
	if err := os.Chown(path, p.qemuUID, p.qemuGID); err != nil {
		log.Printf("Warning: failed to set qemu ownership on %s: %v", path, err)
	}

	return nil
}

func (p *Provisioner) removeTarget(targetPath string) {
	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to remove partial disk %s: %v", targetPath, err)
	}
}
