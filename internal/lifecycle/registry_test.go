package lifecycle

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/store"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(&fakeProvider{}, store.New(t.TempDir(), zap.NewNop()), Config{}, zap.NewNop())
}

func TestRegistry_GetReturnsSameActor(t *testing.T) {
	reg := testRegistry(t)
	key := testKey()
	if reg.Get(key) != reg.Get(key) {
		t.Fatal("two actors created for the same key")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 actor, got %d", reg.Len())
	}
}

func TestRegistry_DistinctKeysDistinctActors(t *testing.T) {
	reg := testRegistry(t)
	a := reg.Get(core.WorkspaceKey{SessionID: "s1", User: "alice", Repo: "demo"})
	b := reg.Get(core.WorkspaceKey{SessionID: "s1", User: "alice", Repo: "other"})
	if a == b {
		t.Fatal("distinct keys shared an actor")
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 actors, got %d", reg.Len())
	}
}

func TestRegistry_ConcurrentGetSingleWinner(t *testing.T) {
	reg := testRegistry(t)
	key := testKey()

	const n = 32
	actors := make([]*Actor, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actors[i] = reg.Get(key)
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if actors[i] != actors[0] {
			t.Fatal("concurrent Get created more than one actor")
		}
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 actor, got %d", reg.Len())
	}
}

func TestRegistry_ListSnapshot(t *testing.T) {
	reg := testRegistry(t)
	reg.Get(core.WorkspaceKey{SessionID: "s1", User: "a", Repo: "r1"})
	reg.Get(core.WorkspaceKey{SessionID: "s1", User: "a", Repo: "r2"})

	if got := len(reg.List()); got != 2 {
		t.Fatalf("expected 2 actors in snapshot, got %d", got)
	}
}
