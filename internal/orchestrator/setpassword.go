package orchestrator

import (
	"context"
	"fmt"
)

// SetPassword stages a password reset for a stopped VM by delegating to
// the credential injector under the VM's name lock. Holding the lock
// keeps the injector's stopped-state check valid for the whole
// operation: a concurrent Start on the same name waits until the seed
// ISO is attached.
func (o *Orchestrator) SetPassword(ctx context.Context, name, username, password string) error {
	if o.injector == nil {
		return fmt.Errorf("orchestrator: no credential injector configured")
	}

	lock := o.locks.acquire(name)
	lock.Lock()
	defer o.locks.release(name, lock)

	if _, err := o.managed(name); err != nil {
		return err
	}

	return o.injector.SetPassword(ctx, name, username, password)
}
