// Package loader loads VM create requests from YAML files, so a VM can
// be described declaratively and created with `vmfinder vm create -f`.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/orchestrator"
)

// vmFile is the on-disk shape of a declarative VM description.
type vmFile struct {
	Name      string `yaml:"name"`
	Template  string `yaml:"template"`
	VCPUs     int    `yaml:"vcpus,omitempty"`
	MemoryMiB int    `yaml:"memory_mib,omitempty"`
	DiskGB    int    `yaml:"disk_gb,omitempty"`
	Network   string `yaml:"network,omitempty"`
}

// LoadFromFile loads a create request from a YAML file.
func LoadFromFile(path string) (*orchestrator.CreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	req, err := LoadFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

// LoadFromYAML loads a create request from YAML bytes.
func LoadFromYAML(data []byte) (*orchestrator.CreateRequest, error) {
	var f vmFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	f.Name = strings.ToLower(strings.TrimSpace(f.Name))

	if f.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if err := naming.ValidateName(f.Name); err != nil {
		return nil, err
	}
	if f.Template == "" {
		return nil, fmt.Errorf("missing required field: template")
	}
	if f.VCPUs < 0 {
		return nil, fmt.Errorf("vcpus must be >= 0, got %d", f.VCPUs)
	}
	if f.MemoryMiB < 0 {
		return nil, fmt.Errorf("memory_mib must be >= 0, got %d", f.MemoryMiB)
	}
	if f.DiskGB < 0 {
		return nil, fmt.Errorf("disk_gb must be >= 0, got %d", f.DiskGB)
	}

	return &orchestrator.CreateRequest{
		Name:      f.Name,
		Template:  f.Template,
		VCPUs:     f.VCPUs,
		MemoryMiB: f.MemoryMiB,
		DiskGB:    f.DiskGB,
		Network:   f.Network,
	}, nil
}
