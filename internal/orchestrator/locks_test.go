package orchestrator

import (
	"sync"
	"testing"
)

func TestNameLocks_PrunesReleasedEntries(t *testing.T) {
	var l nameLocks

	lk := l.acquire("web-server")
	lk.Lock()
	if len(l.names) != 1 {
		t.Fatalf("entries after acquire = %d, want 1", len(l.names))
	}

	l.release("web-server", lk)
	if len(l.names) != 0 {
		t.Errorf("entries after release = %d, want 0", len(l.names))
	}
}

func TestNameLocks_KeepsEntryWhileWaitersExist(t *testing.T) {
	var l nameLocks

	first := l.acquire("web-server")
	first.Lock()

	var wg sync.WaitGroup
	wg.Add(1)
	second := l.acquire("web-server")
	go func() {
		defer wg.Done()
		second.Lock()
		l.release("web-server", second)
	}()

	l.release("web-server", first)
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.names) != 0 {
		t.Errorf("entries after all releases = %d, want 0", len(l.names))
	}
}

func TestNameLocks_IndependentNames(t *testing.T) {
	var l nameLocks

	a := l.acquire("alpha")
	a.Lock()
	b := l.acquire("bravo")
	b.Lock()

	if len(l.names) != 2 {
		t.Fatalf("entries = %d, want 2", len(l.names))
	}

	l.release("alpha", a)
	if len(l.names) != 1 {
		t.Errorf("entries after one release = %d, want 1", len(l.names))
	}
	l.release("bravo", b)
}
