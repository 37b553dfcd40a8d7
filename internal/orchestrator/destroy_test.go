package orchestrator

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/vmfinder/vmfinder/internal/naming"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

func TestDestroy(t *testing.T) {
	env := newTestEnv(t)
	createTestVM(t, env)

	if err := env.orch.Destroy(context.Background(), "web-server"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	if _, err := env.orch.Get("web-server"); !errors.Is(err, vmerr.ErrVMNotFound) {
		t.Errorf("Get() after destroy error = %v, want ErrVMNotFound", err)
	}
	if _, ok := env.hv.domains["web-server"]; ok {
		t.Error("domain still defined after destroy")
	}
	if _, err := os.Stat(naming.DiskPath(env.base, "web-server")); !os.IsNotExist(err) {
		t.Error("working disk still present after destroy")
	}
}

func TestDestroy_Running(t *testing.T) {
	env := newTestEnv(t)
	createTestVM(t, env)
	ctx := context.Background()

	if err := env.orch.Start(ctx, "web-server"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.orch.Destroy(ctx, "web-server"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	if got := env.hv.callCount("destroy"); got != 1 {
		t.Errorf("destroy called %d times, want 1", got)
	}
	if _, ok := env.hv.domains["web-server"]; ok {
		t.Error("domain still defined after destroy")
	}
}

func TestDestroy_Absent(t *testing.T) {
	env := newTestEnv(t)

	if err := env.orch.Destroy(context.Background(), "never-existed"); err != nil {
		t.Errorf("Destroy() of absent vm error = %v, want nil", err)
	}
}

func TestDestroy_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	createTestVM(t, env)
	ctx := context.Background()

	if err := env.orch.Destroy(ctx, "web-server"); err != nil {
		t.Fatalf("first Destroy() error = %v", err)
	}
	if err := env.orch.Destroy(ctx, "web-server"); err != nil {
		t.Errorf("second Destroy() error = %v, want nil", err)
	}
}

func TestDestroy_CreateAfterDestroy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	createTestVM(t, env)
	if err := env.orch.Destroy(ctx, "web-server"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if _, err := env.orch.Create(ctx, defaultRequest()); err != nil {
		t.Fatalf("Create() after destroy error = %v", err)
	}
}
