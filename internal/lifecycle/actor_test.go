package lifecycle

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eurekahq/wsgate/internal/core"
	"github.com/eurekahq/wsgate/internal/provider"
	"github.com/eurekahq/wsgate/internal/retry"
	"github.com/eurekahq/wsgate/internal/store"
)

// fakeProvider is an in-memory provider.API with per-operation hooks and
// call counters.
type fakeProvider struct {
	mu          sync.Mutex
	nextID      int
	createCalls int
	startCalls  int
	stopCalls   int
	listCalls   int
	started     []string

	createErr error
	startErr  error
	stopErr   error
	machines  []provider.Machine

	createDelay time.Duration
}

func (f *fakeProvider) CreateMachine(ctx context.Context, override map[string]any) (string, error) {
	f.mu.Lock()
	f.createCalls++
	delay := f.createDelay
	err := f.createErr
	f.nextID++
	id := "m_" + string(rune('0'+f.nextID))
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (f *fakeProvider) StartMachine(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeProvider) StopMachine(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeProvider) ListMachines(ctx context.Context) ([]provider.Machine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.machines, nil
}

func (f *fakeProvider) GetMachine(ctx context.Context, id string) (provider.Machine, error) {
	return provider.Machine{ID: id}, nil
}

func (f *fakeProvider) counts() (create, start, stop int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.startCalls, f.stopCalls
}

func testSetup(t *testing.T, fp *fakeProvider, cfg Config) (*Registry, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s := store.New(dir, zap.NewNop())
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.Options{Attempts: 4, Base: time.Millisecond, Multiplier: 2}
	}
	return NewRegistry(fp, s, cfg, zap.NewNop()), s, dir
}

func testKey() core.WorkspaceKey {
	return core.WorkspaceKey{SessionID: "s1", User: "alice", Repo: "demo"}
}

func nxdomain() error {
	return &net.DNSError{Err: "no such host", Name: "m_1.vm.app.internal", IsNotFound: true}
}

func TestEnsure_ColdCreatesOnce(t *testing.T) {
	fp := &fakeProvider{}
	reg, s, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())

	id, err := a.Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id == "" {
		t.Fatal("ensure returned empty id")
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("expected 1 create, got %d", c)
	}

	rec, err := s.Load(testKey())
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if rec.MachineID != id {
		t.Fatalf("persisted %q, ensure returned %q", rec.MachineID, id)
	}
}

func TestEnsure_ConcurrentCallersShareOneCreate(t *testing.T) {
	fp := &fakeProvider{createDelay: 10 * time.Millisecond}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = a.Ensure(context.Background())
		}()
	}
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("callers saw different ids: %q vs %q", ids[i], ids[0])
		}
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("expected exactly 1 create across concurrent callers, got %d", c)
	}
}

func TestEnsure_WarmReuseFromStore(t *testing.T) {
	fp := &fakeProvider{}
	reg, s, _ := testSetup(t, fp, Config{})
	if err := s.Save(testKey(), store.MachineRecord{MachineID: "m_9"}); err != nil {
		t.Fatal(err)
	}

	id, err := reg.Get(testKey()).Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id != "m_9" {
		t.Fatalf("expected persisted id m_9, got %q", id)
	}
	create, start, _ := fp.counts()
	if create != 0 {
		t.Fatalf("create called on warm reuse: %d", create)
	}
	if start != 1 {
		t.Fatalf("expected 1 start, got %d", start)
	}
}

func TestEnsure_StoreStartFailureFallsThrough(t *testing.T) {
	fp := &fakeProvider{startErr: &provider.Error{Kind: provider.KindNotFound}}
	reg, s, _ := testSetup(t, fp, Config{})
	if err := s.Save(testKey(), store.MachineRecord{MachineID: "m_gone"}); err != nil {
		t.Fatal(err)
	}

	id, err := reg.Get(testKey()).Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id == "m_gone" {
		t.Fatal("stale id adopted despite start failure")
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("expected fallback create, got %d creates", c)
	}
}

func TestEnsure_AdoptsOrphanFromProviderList(t *testing.T) {
	fp := &fakeProvider{machines: []provider.Machine{
		{ID: "m_orphan", Config: provider.MachineConfig{Env: map[string]string{"USERNAME": "alice", "REPO_NAME": "demo"}}},
		{ID: "m_other", Config: provider.MachineConfig{Env: map[string]string{"USERNAME": "bob", "REPO_NAME": "x"}}},
	}}
	reg, s, _ := testSetup(t, fp, Config{})

	id, err := reg.Get(testKey()).Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id != "m_orphan" {
		t.Fatalf("expected adopted id m_orphan, got %q", id)
	}
	if c, _, _ := fp.counts(); c != 0 {
		t.Fatalf("create called despite adoptable orphan: %d", c)
	}
	rec, err := s.Load(testKey())
	if err != nil || rec.MachineID != "m_orphan" {
		t.Fatalf("adopted id not persisted: %v %v", rec, err)
	}
}

func TestEnsure_AmbiguousOrphansNotAdopted(t *testing.T) {
	env := map[string]string{"USERNAME": "alice", "REPO_NAME": "demo"}
	fp := &fakeProvider{machines: []provider.Machine{
		{ID: "m_a", Config: provider.MachineConfig{Env: env}},
		{ID: "m_b", Config: provider.MachineConfig{Env: env}},
	}}
	reg, _, _ := testSetup(t, fp, Config{})

	id, err := reg.Get(testKey()).Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if id == "m_a" || id == "m_b" {
		t.Fatalf("ambiguous orphan adopted: %q", id)
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("expected create, got %d", c)
	}
}

func TestEnsure_CorruptRecordReprovisions(t *testing.T) {
	fp := &fakeProvider{}
	reg, s, dir := testSetup(t, fp, Config{})

	p := filepath.Join(dir, "s1", "alice", "demo.json")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(`{"bogus":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	id, err := reg.Get(testKey()).Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("expected create after corrupt record, got %d", c)
	}
	if fp.listCalls != 1 {
		t.Fatalf("provider list not consulted: %d", fp.listCalls)
	}

	rec, err := s.Load(testKey())
	if err != nil {
		t.Fatalf("record not rewritten: %v", err)
	}
	if rec.MachineID != id {
		t.Fatalf("record holds %q, ensure returned %q", rec.MachineID, id)
	}
}

func TestEnsure_CreateFailureSurfaces(t *testing.T) {
	fp := &fakeProvider{createErr: &provider.Error{Kind: provider.KindServerError, Detail: "capacity"}}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())

	_, err := a.Ensure(context.Background())
	if provider.Kind(err) != provider.KindServerError {
		t.Fatalf("expected server_error, got %v", err)
	}
	if _, err := a.MachineID(context.Background()); err == nil {
		t.Fatal("failed create left a machine id behind")
	}
}

func TestMachineID_NoMachine(t *testing.T) {
	reg, _, _ := testSetup(t, &fakeProvider{}, Config{})
	_, err := reg.Get(testKey()).MachineID(context.Background())
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Code != core.ErrNoMachine {
		t.Fatalf("expected WSG_NO_MACHINE, got %v", err)
	}
}

func TestSuspend_StopsAndKeepsID(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())

	id, err := a.Ensure(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	prev, err := a.Suspend(context.Background())
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if prev != id {
		t.Fatalf("suspend returned %q, expected %q", prev, id)
	}
	if _, _, stop := fp.counts(); stop != 1 {
		t.Fatalf("expected 1 stop, got %d", stop)
	}

	// The id survives suspension and a later Ensure reuses it.
	got, err := a.Ensure(context.Background())
	if err != nil || got != id {
		t.Fatalf("post-suspend ensure: %q, %v", got, err)
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("post-suspend ensure created a new machine: %d creates", c)
	}
}

func TestSuspend_NoMachine(t *testing.T) {
	reg, _, _ := testSetup(t, &fakeProvider{}, Config{})
	_, err := reg.Get(testKey()).Suspend(context.Background())
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Code != core.ErrNoMachine {
		t.Fatalf("expected WSG_NO_MACHINE, got %v", err)
	}
}

func TestAutoSuspend_FiresOnceAfterInactivity(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{InactivityTimeout: 50 * time.Millisecond})
	a := reg.Get(testKey())

	id, err := a.Ensure(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(150 * time.Millisecond)
	if _, _, stop := fp.counts(); stop != 1 {
		t.Fatalf("expected exactly 1 auto-suspend stop, got %d", stop)
	}

	got, err := a.Ensure(context.Background())
	if err != nil || got != id {
		t.Fatalf("ensure after auto-suspend: %q, %v", got, err)
	}
	if c, _, _ := fp.counts(); c != 1 {
		t.Fatalf("auto-suspend lost the machine id: %d creates", c)
	}
}

func TestAutoSuspend_ActivityResetsTimer(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{InactivityTimeout: 80 * time.Millisecond})
	a := reg.Get(testKey())

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Keep touching the workspace more often than the timeout.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		if _, err := a.Ensure(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, stop := fp.counts(); stop != 0 {
		t.Fatalf("timer fired despite activity: %d stops", stop)
	}
}

func TestRequest_RecoversFromNXDOMAINWithSingleStart(t *testing.T) {
	fp := &fakeProvider{}
	reg, s, _ := testSetup(t, fp, Config{})
	if err := s.Save(testKey(), store.MachineRecord{MachineID: "m_2"}); err != nil {
		t.Fatal(err)
	}
	a := reg.Get(testKey())
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, startsBefore, _ := fp.counts()

	var mu sync.Mutex
	attempts := 0
	op := func(ctx context.Context, machineID string) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, nxdomain()
		}
		return "sessions", nil
	}

	v, err := a.Request(context.Background(), op)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if v != "sessions" {
		t.Fatalf("unexpected result: %v", v)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (initial + 2 retries), got %d", attempts)
	}
	_, startsAfter, _ := fp.counts()
	if startsAfter-startsBefore != 1 {
		t.Fatalf("expected exactly 1 recovery start, got %d", startsAfter-startsBefore)
	}
}

func TestRequest_TimeoutTriggersRecovery(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}

	calls := 0
	_, err := a.Request(context.Background(), func(ctx context.Context, machineID string) (any, error) {
		calls++
		if calls == 1 {
			return nil, &provider.Error{Kind: provider.KindTimeout}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected recovery retry, got %d calls", calls)
	}
}

func TestRequest_NonTransientErrorNotRetried(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, startsBefore, _ := fp.counts()

	calls := 0
	opErr := &provider.Error{Kind: provider.KindClientError, Detail: "bad request"}
	_, err := a.Request(context.Background(), func(ctx context.Context, machineID string) (any, error) {
		calls++
		return nil, opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("expected op error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-transient error retried: %d calls", calls)
	}
	if _, startsAfter, _ := fp.counts(); startsAfter != startsBefore {
		t.Fatal("start attempted for non-transient error")
	}
}

func TestRequest_StartFailureReturnsOriginalError(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}

	fp.mu.Lock()
	fp.startErr = &provider.Error{Kind: provider.KindServerError}
	fp.mu.Unlock()

	calls := 0
	_, err := a.Request(context.Background(), func(ctx context.Context, machineID string) (any, error) {
		calls++
		return nil, nxdomain()
	})
	if !provider.IsNXDOMAIN(err) {
		t.Fatalf("expected the original transport error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("op retried despite start failure: %d calls", calls)
	}
}

func TestCallerTimeoutDoesNotAbortOperation(t *testing.T) {
	fp := &fakeProvider{createDelay: 80 * time.Millisecond}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := a.Ensure(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}

	// The actor finishes the create on its own; the id becomes visible.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if id, err := a.MachineID(context.Background()); err == nil && id != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("abandoned ensure never completed")
}

func TestWake_StartsExistingMachine(t *testing.T) {
	fp := &fakeProvider{}
	reg, _, _ := testSetup(t, fp, Config{})
	a := reg.Get(testKey())
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Suspend(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, startsBefore, _ := fp.counts()

	if err := a.Wake(context.Background()); err != nil {
		t.Fatalf("wake failed: %v", err)
	}
	if _, startsAfter, _ := fp.counts(); startsAfter-startsBefore != 1 {
		t.Fatalf("expected 1 start, got %d", startsAfter-startsBefore)
	}
}
