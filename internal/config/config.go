// Package config holds vmfinder's host-level settings: where disks and
// templates live, how to reach libvirt, and the lifecycle timeouts.
// Settings come from an optional YAML file; everything has a working
// default so a bare install needs no config at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vmfinder/vmfinder/internal/hypervisor"
)

const (
	// DefaultPath is where Load looks when no path is given.
	DefaultPath = "/etc/vmfinder/config.yaml"

	// DefaultStorageBase is the directory for working disks and seed
	// ISOs.
	DefaultStorageBase = "/var/lib/vmfinder/disks"

	// DefaultTemplatesDir is the template registry directory.
	DefaultTemplatesDir = "/etc/vmfinder/templates"

	// DefaultNetwork is the libvirt network new VMs attach to.
	DefaultNetwork = "default"

	// DefaultShutdownTimeoutSec is how long a graceful stop waits.
	DefaultShutdownTimeoutSec = 30
)

// Settings is the resolved vmfinder configuration.
type Settings struct {
	// StorageBase is the directory working disks are provisioned in.
	StorageBase string `yaml:"storage_base,omitempty"`

	// TemplatesDir is the directory of template YAML files.
	TemplatesDir string `yaml:"templates_dir,omitempty"`

	// LibvirtSocket is the local libvirtd unix socket.
	LibvirtSocket string `yaml:"libvirt_socket,omitempty"`

	// Network is the default libvirt network for new VMs.
	Network string `yaml:"network,omitempty"`

	// ShutdownTimeoutSec bounds graceful stops before force-off.
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_seconds,omitempty"`
}

// Default returns settings with every field at its default.
func Default() *Settings {
	s := &Settings{}
	s.Normalize()
	return s
}

// Normalize fills empty fields with defaults.
func (s *Settings) Normalize() {
	if s.StorageBase == "" {
		s.StorageBase = DefaultStorageBase
	}
	if s.TemplatesDir == "" {
		s.TemplatesDir = DefaultTemplatesDir
	}
	if s.LibvirtSocket == "" {
		s.LibvirtSocket = hypervisor.DefaultSocketPath
	}
	if s.Network == "" {
		s.Network = DefaultNetwork
	}
	if s.ShutdownTimeoutSec == 0 {
		s.ShutdownTimeoutSec = DefaultShutdownTimeoutSec
	}
}

// Validate checks the settings for structural errors.
func (s *Settings) Validate() error {
	if s.ShutdownTimeoutSec < 0 {
		return fmt.Errorf("shutdown_timeout_seconds must be >= 0, got %d", s.ShutdownTimeoutSec)
	}
	return nil
}

// ShutdownTimeout returns the graceful stop bound as a duration.
func (s *Settings) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

// Load reads settings from a YAML file. A missing file is not an
// error: defaults are returned, so vmfinder runs unconfigured.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return &s, nil
}
