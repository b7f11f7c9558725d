package server

import (
	"sync"
	"testing"
)

func TestRegistryAddRemove(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	reg := NewRegistry()

	s1 := newSession(srv, nil)
	s2 := newSession(srv, nil)

	reg.Add(s1)
	reg.Add(s1) // double add is a no-op
	reg.Add(s2)
	if got := reg.Len(); got != 2 {
		t.Fatalf("Len: want=2 got=%d", got)
	}

	reg.Remove(s1)
	reg.Remove(s1) // double remove is a no-op
	if got := reg.Len(); got != 1 {
		t.Fatalf("Len after remove: want=1 got=%d", got)
	}

	snap := reg.Snapshot()
	if len(snap) != 1 || snap[0] != s2 {
		t.Fatalf("Snapshot: want [s2], got %v", snap)
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	srv := newTestServer(t, newFakeGateway())
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := newSession(srv, nil)
				reg.Add(s)
				_ = reg.Snapshot()
				reg.Remove(s)
			}
		}()
	}
	wg.Wait()

	if got := reg.Len(); got != 0 {
		t.Fatalf("Len after churn: want=0 got=%d", got)
	}
}
