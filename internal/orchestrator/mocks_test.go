package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/vmfinder/vmfinder/internal/hypervisor"
	"github.com/vmfinder/vmfinder/internal/template"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

// mockHypervisor is an in-memory libvirt: domains with run states plus
// per-domain metadata. Error fields force individual calls to fail.
type mockHypervisor struct {
	mu    sync.Mutex
	calls []string

	domains  map[string]*mockDomain
	metadata map[string]string

	defineErr   error
	createErr   error
	shutdownErr error
	destroyErr  error
	suspendErr  error
	resumeErr   error
	undefineErr error

	// ignoreShutdown simulates a guest that never answers ACPI.
	ignoreShutdown bool
}

type mockDomain struct {
	dom   libvirt.Domain
	state hypervisor.RunState
}

func newMockHypervisor() *mockHypervisor {
	return &mockHypervisor{
		domains:  make(map[string]*mockDomain),
		metadata: make(map[string]string),
	}
}

func (m *mockHypervisor) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockHypervisor) callCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

// addDomain seeds a pre-existing domain, as if defined before the
// orchestrator started.
func (m *mockHypervisor) addDomain(name string, state hypervisor.RunState) libvirt.Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	dom := libvirt.Domain{Name: name}
	m.domains[name] = &mockDomain{dom: dom, state: state}
	return dom
}

func (m *mockHypervisor) stateOf(name string) (hypervisor.RunState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.domains[name]
	if !ok {
		return hypervisor.StateNoState, false
	}
	return md.state, true
}

func (m *mockHypervisor) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("lookup")
	md, ok := m.domains[name]
	if !ok {
		return libvirt.Domain{}, fmt.Errorf("domain %s not found", name)
	}
	return md.dom, nil
}

func (m *mockHypervisor) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("define")
	if m.defineErr != nil {
		return libvirt.Domain{}, m.defineErr
	}

	var def libvirtxml.Domain
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, fmt.Errorf("bad domain XML: %w", err)
	}

	dom := libvirt.Domain{Name: def.Name}
	if existing, ok := m.domains[def.Name]; ok {
		// Redefine keeps the run state.
		existing.dom = dom
		return dom, nil
	}
	m.domains[def.Name] = &mockDomain{dom: dom, state: hypervisor.StateShutoff}
	return dom, nil
}

func (m *mockHypervisor) DomainUndefineFlags(dom libvirt.Domain, flags libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("undefine")
	if m.undefineErr != nil {
		return m.undefineErr
	}
	delete(m.domains, dom.Name)
	delete(m.metadata, dom.Name)
	return nil
}

func (m *mockHypervisor) DomainCreate(dom libvirt.Domain) error {
	return m.transition(dom, "create", m.createErr, hypervisor.StateRunning)
}

func (m *mockHypervisor) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("shutdown")
	if m.shutdownErr != nil {
		return m.shutdownErr
	}
	if m.ignoreShutdown {
		return nil
	}
	if md, ok := m.domains[dom.Name]; ok {
		md.state = hypervisor.StateShutoff
	}
	return nil
}

func (m *mockHypervisor) DomainDestroy(dom libvirt.Domain) error {
	return m.transition(dom, "destroy", m.destroyErr, hypervisor.StateShutoff)
}

func (m *mockHypervisor) DomainSuspend(dom libvirt.Domain) error {
	return m.transition(dom, "suspend", m.suspendErr, hypervisor.StatePaused)
}

func (m *mockHypervisor) DomainResume(dom libvirt.Domain) error {
	return m.transition(dom, "resume", m.resumeErr, hypervisor.StateRunning)
}

func (m *mockHypervisor) transition(dom libvirt.Domain, call string, callErr error, to hypervisor.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(call)
	if callErr != nil {
		return callErr
	}
	md, ok := m.domains[dom.Name]
	if !ok {
		return fmt.Errorf("domain %s not found", dom.Name)
	}
	md.state = to
	return nil
}

func (m *mockHypervisor) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.domains[dom.Name]
	if !ok {
		return 0, 0, fmt.Errorf("domain %s not found", dom.Name)
	}
	return int32(md.state), 0, nil
}

func (m *mockHypervisor) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]libvirt.Domain, 0, len(m.domains))
	for _, md := range m.domains {
		out = append(out, md.dom)
	}
	return out, uint32(len(out)), nil
}

func (m *mockHypervisor) DomainSetMetadata(dom libvirt.Domain, typ int32, metadata libvirt.OptString, key libvirt.OptString, uri libvirt.OptString, flags libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(metadata) > 0 {
		m.metadata[dom.Name] = metadata[0]
	}
	return nil
}

func (m *mockHypervisor) DomainGetMetadata(dom libvirt.Domain, typ int32, uri libvirt.OptString, flags libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.metadata[dom.Name]
	if !ok {
		return "", fmt.Errorf("metadata not found for %s", dom.Name)
	}
	return body, nil
}

// mockProvisioner creates real (empty) files under the test storage
// base so the domain builder's disk-path validation passes.
type mockProvisioner struct {
	mu sync.Mutex

	provisioned map[string]int

	provisionErr error
	resizeErr    error
	deleteErr    error
}

func newMockProvisioner() *mockProvisioner {
	return &mockProvisioner{provisioned: make(map[string]int)}
}

func (p *mockProvisioner) Provision(ctx context.Context, baseImage, targetPath string, sizeGB int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provisionErr != nil {
		return p.provisionErr
	}
	if err := os.WriteFile(targetPath, []byte{}, 0o644); err != nil {
		return err
	}
	p.provisioned[targetPath] = sizeGB
	return nil
}

func (p *mockProvisioner) Resize(ctx context.Context, path string, currentGB, sizeGB int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resizeErr != nil {
		return p.resizeErr
	}
	p.provisioned[path] = sizeGB
	return nil
}

func (p *mockProvisioner) Delete(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	delete(p.provisioned, path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// mockTemplates serves a fixed template set.
type mockTemplates struct {
	templates map[string]*template.Template
}

func (m *mockTemplates) Get(name string) (*template.Template, error) {
	tpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", vmerr.ErrTemplateNotFound, name)
	}
	return tpl, nil
}

// mockInjector records SetPassword calls. When entered/release are
// set it parks inside the call so tests can probe lock ordering.
type mockInjector struct {
	mu      sync.Mutex
	calls   []string
	err     error
	entered chan struct{}
	release chan struct{}
}

func (m *mockInjector) SetPassword(ctx context.Context, name, username, password string) error {
	m.mu.Lock()
	m.calls = append(m.calls, name+"/"+username)
	m.mu.Unlock()

	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	return m.err
}

func (m *mockInjector) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// testEnv bundles an orchestrator with its mocks and temp storage.
type testEnv struct {
	orch *Orchestrator
	hv   *mockHypervisor
	prov *mockProvisioner
	base string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, newMockHypervisor())
}

func newTestEnvWith(t *testing.T, hv *mockHypervisor) *testEnv {
	t.Helper()

	base := t.TempDir()
	prov := newMockProvisioner()
	templates := &mockTemplates{
		templates: map[string]*template.Template{
			"ubuntu-22.04": {
				Name:              "ubuntu-22.04",
				OS:                "ubuntu",
				Version:           "22.04",
				Arch:              "x86_64",
				DefaultDiskGB:     20,
				DefaultUser:       "ubuntu",
				CloudImageSupport: true,
			},
		},
	}

	orch, err := New(Config{
		Hypervisor:  hv,
		Provisioner: prov,
		Templates:   templates,
		StorageBase: base,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{orch: orch, hv: hv, prov: prov, base: base}
}

func defaultRequest() CreateRequest {
	return CreateRequest{
		Name:      "web-server",
		Template:  "ubuntu-22.04",
		VCPUs:     2,
		MemoryMiB: 2048,
		DiskGB:    40,
	}
}
