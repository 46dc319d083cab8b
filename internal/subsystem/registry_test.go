package subsystem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
)

type registryFixture struct {
	registry *Registry
	places   *fakePlaces
	loader   *fakeLoader
	rec      *recorder
}

func newRegistryFixture(t *testing.T, cfg RegistryConfig) *registryFixture {
	t.Helper()
	f := &registryFixture{
		places: newFakePlaces("p1", "p2", "p3"),
		loader: &fakeLoader{models: make(map[string][]*model.Entity)},
		rec:    newRecorder(messaging.NamespaceAlarm),
	}
	f.registry = NewRegistry(cfg, RegistryDeps{
		Places: f.places,
		Models: f.loader,
		Executor: Deps{
			Subsystems: []Subsystem{f.rec},
			Models:     newFakeDAO(),
			Sender:     &recordingSender{},
			Scheduler:  newFakeScheduler(),
		},
	})
	t.Cleanup(f.registry.Close)
	return f
}

func (f *registryFixture) load(t *testing.T, placeID string) *Executor {
	t.Helper()
	exec, ok := f.registry.LoadByPlace(context.Background(), placeID)
	if !ok {
		t.Fatalf("LoadByPlace(%q) = false", placeID)
	}
	return exec
}

func TestRegistry_LoadCaches(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})

	first := f.load(t, "p1")
	second := f.load(t, "p1")

	if first != second {
		t.Error("second load built a new executor")
	}
	if f.loader.loadCount() != 1 {
		t.Errorf("loads = %d, want 1", f.loader.loadCount())
	}
	if got := first.Place(); got.ID != "p1" || got.AccountID != "acct-p1" || got.Population != "general" {
		t.Errorf("Place() = %+v", got)
	}
	started := 0
	for _, k := range f.rec.kinds() {
		if k == "started" {
			started++
		}
	}
	if started != 1 {
		t.Errorf("started events = %d, want 1", started)
	}
}

func TestRegistry_ConcurrentLoadsShareOneBuild(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})
	gate := make(chan struct{})
	f.loader.gate = gate

	const callers = 10
	results := make([]*Executor, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec, ok := f.registry.LoadByPlace(context.Background(), "p1")
			if !ok {
				t.Errorf("caller %d: LoadByPlace() = false", i)
			}
			results[i] = exec
		}()
	}

	waitFor(t, "the first load", func() bool { return f.loader.loadCount() == 1 })
	close(gate)
	wg.Wait()

	if f.loader.loadCount() != 1 {
		t.Errorf("loads = %d, want 1", f.loader.loadCount())
	}
	for i, exec := range results {
		if exec != results[0] {
			t.Errorf("caller %d got a different executor", i)
		}
	}
}

func TestRegistry_FailedLoadsAreNotCached(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})

	if _, ok := f.registry.LoadByPlace(context.Background(), "p9"); ok {
		t.Fatal("LoadByPlace(unknown) = true")
	}
	if _, ok := f.registry.LoadByPlace(context.Background(), ""); ok {
		t.Fatal("LoadByPlace(\"\") = true")
	}
	if f.registry.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.registry.Len())
	}

	f.places.add("p9")
	f.load(t, "p9")

	f.places.mu.Lock()
	f.places.err = errors.New("db down")
	f.places.mu.Unlock()
	if _, ok := f.registry.LoadByPlace(context.Background(), "p2"); ok {
		t.Fatal("LoadByPlace() = true while the place store fails")
	}
	f.places.mu.Lock()
	f.places.err = nil
	f.places.mu.Unlock()
	f.load(t, "p2")
}

func TestRegistry_LoadByPlaceAndAccount(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})
	f.places.mu.Lock()
	f.places.err = errors.New("account lookup unavailable")
	f.places.mu.Unlock()

	exec, ok := f.registry.LoadByPlaceAndAccount(context.Background(), "p1", "a-given")
	if !ok {
		t.Fatal("LoadByPlaceAndAccount() = false")
	}
	if exec.Place().AccountID != "a-given" {
		t.Errorf("AccountID = %q, want a-given", exec.Place().AccountID)
	}
	if _, ok := f.registry.LoadByPlaceAndAccount(context.Background(), "p9", "a-given"); ok {
		t.Error("LoadByPlaceAndAccount(unknown place) = true")
	}
}

func TestRegistry_RemoveByPlaceStopsExecutor(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})
	old := f.load(t, "p1")

	f.registry.RemoveByPlace("p1")
	f.registry.RemoveByPlace("p1")
	waitFor(t, "executor stop", old.Stopped)

	if _, ok := f.registry.Peek("p1"); ok {
		t.Error("Peek() found a removed executor")
	}
	fresh := f.load(t, "p1")
	if fresh == old {
		t.Error("load after remove returned the stopped executor")
	}
	if fresh.Stopped() {
		t.Error("new executor is stopped")
	}
}

func TestRegistry_SizeEviction(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{MaxSize: 1})

	p1 := f.load(t, "p1")
	p2 := f.load(t, "p2")

	waitFor(t, "evicted executor stop", p1.Stopped)
	if p2.Stopped() {
		t.Error("newest executor was stopped")
	}
	if f.registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.registry.Len())
	}
}

func TestRegistry_ExpireAfterAccess(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{ExpireAfterAccess: 50 * time.Millisecond})

	old := f.load(t, "p1")
	waitFor(t, "expired executor stop", old.Stopped)

	fresh := f.load(t, "p1")
	if fresh == old || fresh.Stopped() {
		t.Error("load after expiry did not build a live executor")
	}
}

func TestRegistry_AccessKeepsExecutorAlive(t *testing.T) {
	const ttl = time.Hour
	f := newRegistryFixture(t, RegistryConfig{ExpireAfterAccess: ttl})

	p1 := f.load(t, "p1")
	p2 := f.load(t, "p2")
	p1.touched.Store(time.Now().Add(-2 * ttl).UnixNano())

	// A hit records the access without replacing the cached executor.
	before := p2.lastTouched()
	if again := f.load(t, "p2"); again != p2 {
		t.Fatal("cache hit returned a different executor")
	}
	if p2.lastTouched().Before(before) {
		t.Error("cache hit did not record the access")
	}
	f.registry.expire(time.Now())

	waitFor(t, "idle executor stop", p1.Stopped)
	if p2.Stopped() {
		t.Error("recently accessed executor was expired")
	}
	if got, ok := f.registry.Peek("p2"); !ok || got != p2 {
		t.Error("recently accessed executor left the cache")
	}

	f.registry.expire(time.Now().Add(2 * ttl))
	waitFor(t, "executor stop once access stops", p2.Stopped)
	if f.registry.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.registry.Len())
	}
	if f.loader.loadCount() != 2 {
		t.Errorf("loads = %d, want 2", f.loader.loadCount())
	}
}

func TestRegistry_ConcurrentLoadAndRemove(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})

	const workers = 8
	const rounds = 50
	var (
		mu   sync.Mutex
		seen = make(map[*Executor]struct{})
		wg   sync.WaitGroup
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				if i%2 == 0 {
					f.registry.RemoveByPlace("p1")
					continue
				}
				exec, ok := f.registry.LoadByPlace(context.Background(), "p1")
				if !ok {
					t.Error("LoadByPlace() = false")
					return
				}
				mu.Lock()
				seen[exec] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	cached, _ := f.registry.Peek("p1")
	waitFor(t, "uncached executors stop", func() bool {
		for exec := range seen {
			if exec != cached && !exec.Stopped() {
				return false
			}
		}
		return true
	})

	f.registry.Close()
	for exec := range seen {
		if !exec.Stopped() {
			t.Error("Close() left an executor running")
		}
	}
	if f.registry.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", f.registry.Len())
	}
}

func TestNewRegistry_Defaults(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, RegistryDeps{})
	t.Cleanup(r.Close)

	want := RegistryConfig{
		MaxSize:           DefaultCacheMaxSize,
		ExpireAfterAccess: DefaultCacheExpireAfterAccess,
		InitialCapacity:   DefaultCacheInitialCapacity,
		Concurrency:       DefaultCacheConcurrency,
		LoadTimeout:       DefaultLoadTimeout,
	}
	if diff := cmp.Diff(want, r.cfg); diff != "" {
		t.Errorf("defaulted config mismatch (-want +got):\n%s", diff)
	}

	r = NewRegistry(RegistryConfig{MaxSize: 3, InitialCapacity: 7}, RegistryDeps{})
	t.Cleanup(r.Close)
	if r.cfg.MaxSize != 3 || r.cfg.InitialCapacity != 7 {
		t.Errorf("cfg = %+v, want MaxSize 3 and InitialCapacity 7 kept", r.cfg)
	}
}

func TestRegistry_MemoryPressure(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{SoftHeapLimitBytes: 1024})
	var heap uint64 = 512
	f.registry.heapInUse = func() uint64 { return heap }

	p1 := f.load(t, "p1")
	p2 := f.load(t, "p2")

	f.registry.relieve()
	if f.registry.Len() != 2 {
		t.Fatalf("Len() = %d under the limit, want 2", f.registry.Len())
	}

	heap = 4096
	f.registry.relieve()
	waitFor(t, "least recently used executor stop", p1.Stopped)
	if p2.Stopped() {
		t.Error("most recently used executor was stopped")
	}
	if f.registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.registry.Len())
	}
}

func TestRegistry_LoadedModels(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})

	alarm := model.NewEntity(messaging.SubsystemAddress(messaging.NamespaceAlarm, "p1"), messaging.ModelTypeSubsystem)
	alarm.ClearDirty()
	alarm.SetCreated(time.Now())
	device := model.NewEntity(messaging.DriverAddress("d1"), messaging.ModelTypeDevice)
	device.ClearDirty()
	f.loader.models["p1"] = []*model.Entity{alarm, device}

	exec := f.load(t, "p1")
	err := exec.Do(func() {
		sc, _ := exec.Context(alarm.Address())
		if sc.entity != alarm {
			t.Error("stored subsystem model not bound")
		}
		m, ok := sc.Models().Get(device.Address())
		if !ok {
			t.Error("device model not loaded")
			return
		}
		if m.Tracking() {
			t.Error("device model tracks changes")
		}
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	for _, k := range f.rec.kinds() {
		if k == "added" {
			t.Error("persisted subsystem received AddedEvent")
		}
	}
}

func TestRegistry_CloseStopsEverything(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})
	p1 := f.load(t, "p1")
	p2 := f.load(t, "p2")

	f.registry.Close()

	if !p1.Stopped() || !p2.Stopped() {
		t.Error("Close() left executors running")
	}
	if f.registry.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", f.registry.Len())
	}
}
