package orchestrator

import "sync"

// nameLocks serializes lifecycle operations per VM name. Operations on
// different VMs run concurrently; two operations on the same name are
// ordered, so concurrent creates of one name resolve to exactly one
// winner. Entries are reference counted and dropped once the last
// holder releases, so the map does not grow with every name ever
// touched.
type nameLocks struct {
	mu    sync.Mutex
	names map[string]*nameLock
}

type nameLock struct {
	sync.Mutex
	refs int
}

func (l *nameLocks) acquire(name string) *nameLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.names == nil {
		l.names = make(map[string]*nameLock)
	}
	lk, ok := l.names[name]
	if !ok {
		lk = &nameLock{}
		l.names[name] = lk
	}
	lk.refs++
	return lk
}

// release unlocks lk and removes the map entry once no holder or
// waiter references it.
func (l *nameLocks) release(name string, lk *nameLock) {
	lk.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.names, name)
	}
}
