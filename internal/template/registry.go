// Package template provides the template registry: a directory of YAML
// documents mapping a template name (e.g. "ubuntu-22.04") to a base disk
// image and OS metadata used when provisioning new VMs.
//
// Templates are read-only to the orchestrator; mutation happens only
// through the registry's Save/Delete, driven by the CLI.
package template

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// Template describes a named base image plus the OS metadata needed to
// build a domain from it.
type Template struct {
	Name        string `yaml:"name" json:"name"`
	OS          string `yaml:"os" json:"os"`
	Version     string `yaml:"version" json:"version"`
	Arch        string `yaml:"arch" json:"arch"`
	OSVariant   string `yaml:"os_variant,omitempty" json:"os_variant,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// BaseImage is the path to the backing qcow2 image the working disk
	// is cloned from. Empty means VMs from this template start with an
	// empty disk and need a manual OS install.
	BaseImage string `yaml:"base_image,omitempty" json:"base_image,omitempty"`

	// DefaultDiskGB is the minimum working disk size for this template.
	DefaultDiskGB int `yaml:"default_disk_gb" json:"default_disk_gb"`

	// DefaultUser is the account cloud images ship with ("ubuntu",
	// "debian"). Used as the ssh username fallback.
	DefaultUser string `yaml:"default_user,omitempty" json:"default_user,omitempty"`

	// CloudImageSupport marks templates whose guests run cloud-init,
	// which the credential injector depends on.
	CloudImageSupport bool `yaml:"cloud_image_support" json:"cloud_image_support"`
}

// Validate checks the template for structural errors.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if t.OS == "" {
		return fmt.Errorf("template %q: os is required", t.Name)
	}
	if t.DefaultDiskGB < 0 {
		return fmt.Errorf("template %q: default_disk_gb must be >= 0, got %d", t.Name, t.DefaultDiskGB)
	}
	return nil
}

// Registry loads and serves templates from a directory of
// "<name>.yaml" files.
type Registry struct {
	dir       string
	templates map[string]*Template
}

// NewRegistry creates a registry rooted at dir, creating the directory
// if needed, and loads all templates found there. Files that fail to
// parse are skipped with a warning so one broken template does not take
// the registry down.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create templates directory %s: %w", dir, err)
	}

	r := &Registry{
		dir:       dir,
		templates: make(map[string]*Template),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read templates directory %s: %w", r.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: failed to read template %s: %v", path, err)
			continue
		}

		var tpl Template
		if err := yaml.Unmarshal(data, &tpl); err != nil {
			log.Printf("Warning: failed to parse template %s: %v", path, err)
			continue
		}
		if tpl.Name == "" {
			tpl.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		if err := tpl.Validate(); err != nil {
			log.Printf("Warning: skipping template %s: %v", path, err)
			continue
		}

		r.templates[tpl.Name] = &tpl
	}

	return nil
}

// Get returns the template registered under name.
func (r *Registry) Get(name string) (*Template, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", vmerr.ErrTemplateNotFound, name)
	}
	return tpl, nil
}

// List returns all templates sorted by name.
func (r *Registry) List() []*Template {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Template, 0, len(names))
	for _, name := range names {
		out = append(out, r.templates[name])
	}
	return out
}

// Save writes the template to disk and registers it, replacing any
// previous template of the same name.
func (r *Registry) Save(tpl *Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template %q: %w", tpl.Name, err)
	}

	path := filepath.Join(r.dir, tpl.Name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template %s: %w", path, err)
	}

	r.templates[tpl.Name] = tpl
	return nil
}

// Delete removes the template file and unregisters it. Deleting an
// unknown template returns ErrTemplateNotFound.
func (r *Registry) Delete(name string) error {
	if _, ok := r.templates[name]; !ok {
		return fmt.Errorf("%w: %q", vmerr.ErrTemplateNotFound, name)
	}

	path := filepath.Join(r.dir, name+".yaml")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete template %s: %w", path, err)
	}

	delete(r.templates, name)
	return nil
}
