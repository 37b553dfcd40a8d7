package orchestrator

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

func TestCreate(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.orch.Create(context.Background(), defaultRequest())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if rec.State != record.StateStopped {
		t.Errorf("State = %q, want stopped", rec.State)
	}
	if rec.Template != "ubuntu-22.04" {
		t.Errorf("Template = %q, want ubuntu-22.04", rec.Template)
	}
	if rec.DiskGB != 40 {
		t.Errorf("DiskGB = %d, want 40", rec.DiskGB)
	}
	if rec.DomainUUID == "" {
		t.Error("DomainUUID is empty")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}

	wantDisk := naming.DiskPath(env.base, "web-server")
	if rec.DiskPath != wantDisk {
		t.Errorf("DiskPath = %q, want %q", rec.DiskPath, wantDisk)
	}
	if _, err := os.Stat(wantDisk); err != nil {
		t.Errorf("working disk not provisioned: %v", err)
	}

	if _, ok := env.hv.domains["web-server"]; !ok {
		t.Error("domain not defined in hypervisor")
	}
	if _, ok := env.hv.metadata["web-server"]; !ok {
		t.Error("record not persisted to domain metadata")
	}
}

func TestCreate_RoundsDiskUpToTemplateDefault(t *testing.T) {
	env := newTestEnv(t)

	req := defaultRequest()
	req.DiskGB = 5 // template default is 20

	rec, err := env.orch.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.DiskGB != 20 {
		t.Errorf("DiskGB = %d, want 20 (template default)", rec.DiskGB)
	}
}

func TestCreate_InvalidName(t *testing.T) {
	env := newTestEnv(t)

	req := defaultRequest()
	req.Name = "-Bad Name-"

	if _, err := env.orch.Create(context.Background(), req); !errors.Is(err, vmerr.ErrInvalidSpec) {
		t.Errorf("Create() error = %v, want ErrInvalidSpec", err)
	}
}

func TestCreate_TemplateNotFound(t *testing.T) {
	env := newTestEnv(t)

	req := defaultRequest()
	req.Template = "windows-95"

	if _, err := env.orch.Create(context.Background(), req); !errors.Is(err, vmerr.ErrTemplateNotFound) {
		t.Errorf("Create() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestCreate_NameConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.orch.Create(ctx, defaultRequest()); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := env.orch.Create(ctx, defaultRequest()); !errors.Is(err, vmerr.ErrNameConflict) {
		t.Errorf("second Create() error = %v, want ErrNameConflict", err)
	}
}

func TestCreate_ConflictWithForeignDomain(t *testing.T) {
	env := newTestEnv(t)
	env.hv.addDomain("web-server", 5)

	if _, err := env.orch.Create(context.Background(), defaultRequest()); !errors.Is(err, vmerr.ErrNameConflict) {
		t.Errorf("Create() error = %v, want ErrNameConflict", err)
	}
}

func TestCreate_ForceReplacesExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.orch.Create(ctx, defaultRequest())
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	req := defaultRequest()
	req.Force = true
	req.MemoryMiB = 4096

	second, err := env.orch.Create(ctx, req)
	if err != nil {
		t.Fatalf("forced Create() error = %v", err)
	}

	if second.DomainUUID == first.DomainUUID {
		t.Error("forced create reused the old domain UUID")
	}
	if second.MemoryMiB != 4096 {
		t.Errorf("MemoryMiB = %d, want 4096", second.MemoryMiB)
	}
	if got := env.hv.callCount("undefine"); got != 1 {
		t.Errorf("undefine called %d times, want 1", got)
	}
}

func TestCreate_ProvisionFailureLeavesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.prov.provisionErr = errors.New("qemu-img exploded")

	_, err := env.orch.Create(context.Background(), defaultRequest())
	if err == nil {
		t.Fatal("Create() error = nil, want error")
	}

	assertNoTrace(t, env, "web-server")
}

func TestCreate_DefineFailureRollsBackDisk(t *testing.T) {
	env := newTestEnv(t)
	env.hv.defineErr = errors.New("libvirt rejected the XML")

	_, err := env.orch.Create(context.Background(), defaultRequest())
	if !errors.Is(err, vmerr.ErrHypervisor) {
		t.Fatalf("Create() error = %v, want ErrHypervisor", err)
	}

	assertNoTrace(t, env, "web-server")
}

func TestCreate_CancelledContext(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.orch.Create(ctx, defaultRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Create() error = %v, want context.Canceled", err)
	}

	assertNoTrace(t, env, "web-server")
}

// assertNoTrace checks that a failed create left no record, no domain,
// and no disk.
func assertNoTrace(t *testing.T, env *testEnv, name string) {
	t.Helper()

	if _, err := env.orch.Get(name); !errors.Is(err, vmerr.ErrVMNotFound) {
		t.Errorf("Get() error = %v, want ErrVMNotFound", err)
	}
	if _, ok := env.hv.domains[name]; ok {
		t.Error("domain left defined after failed create")
	}
	if _, err := os.Stat(naming.DiskPath(env.base, name)); !os.IsNotExist(err) {
		t.Error("working disk left behind after failed create")
	}
}

func TestCreate_ConcurrentSameName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.orch.Create(ctx, defaultRequest())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, vmerr.ErrNameConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d creates succeeded, want exactly 1", succeeded)
	}

	rec, err := env.orch.Get("web-server")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.State != record.StateStopped {
		t.Errorf("State = %q, want stopped", rec.State)
	}
}
