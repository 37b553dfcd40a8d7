package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vmfinder/vmfinder/internal/record"
	"github.com/vmfinder/vmfinder/internal/vmerr"
)

func TestSetPassword_Delegates(t *testing.T) {
	env := newTestEnv(t)
	createTestVM(t, env)
	inj := &mockInjector{}
	env.orch.injector = inj

	if err := env.orch.SetPassword(context.Background(), "web-server", "ubuntu", "hunter2"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	if inj.callCount() != 1 {
		t.Fatalf("injector calls = %d, want 1", inj.callCount())
	}
	if inj.calls[0] != "web-server/ubuntu" {
		t.Errorf("injector call = %q, want web-server/ubuntu", inj.calls[0])
	}
}

func TestSetPassword_NotFound(t *testing.T) {
	env := newTestEnv(t)
	inj := &mockInjector{}
	env.orch.injector = inj

	err := env.orch.SetPassword(context.Background(), "ghost", "", "pw")
	if !errors.Is(err, vmerr.ErrVMNotFound) {
		t.Fatalf("SetPassword() error = %v, want ErrVMNotFound", err)
	}
	if inj.callCount() != 0 {
		t.Errorf("injector calls = %d, want 0", inj.callCount())
	}
}

func TestSetPassword_NoInjector(t *testing.T) {
	env := newTestEnv(t)
	createTestVM(t, env)

	if err := env.orch.SetPassword(context.Background(), "web-server", "", "pw"); err == nil {
		t.Error("SetPassword() without an injector error = nil, want error")
	}
}

// A Start on the same name must wait until the injector is done: the
// injector's stopped-state check stays valid for the whole operation.
func TestSetPassword_SerializesWithLifecycle(t *testing.T) {
	env := newTestEnv(t)
	createTestVM(t, env)
	inj := &mockInjector{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	env.orch.injector = inj
	ctx := context.Background()

	injErr := make(chan error, 1)
	go func() { injErr <- env.orch.SetPassword(ctx, "web-server", "ubuntu", "pw") }()
	<-inj.entered

	startErr := make(chan error, 1)
	go func() { startErr <- env.orch.Start(ctx, "web-server") }()

	select {
	case err := <-startErr:
		t.Fatalf("Start() finished while the injector held the name lock, error = %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(inj.release)
	if err := <-injErr; err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if err := <-startErr; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	assertVMState(t, env, "web-server", record.StateRunning)
}
