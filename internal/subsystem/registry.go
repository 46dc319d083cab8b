package subsystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
	"github.com/nerrad567/gray-logic-subsystems/internal/place"
)

// Registry defaults.
const (
	DefaultCacheMaxSize           = 10000
	DefaultCacheExpireAfterAccess = 30 * time.Minute
	DefaultCacheInitialCapacity   = 100
	DefaultCacheConcurrency       = 16
	DefaultLoadTimeout            = 30 * time.Second

	// maxSweepInterval bounds how often idle executors are expired and,
	// when memory-pressure eviction is enabled, heap usage is checked.
	maxSweepInterval = 5 * time.Second

	// pressureEvictFraction is the share of cached executors evicted per
	// sweep while the heap is over its limit.
	pressureEvictFraction = 10
)

// TrackedModelTypes are the model types loaded into each place's store.
var TrackedModelTypes = []string{
	messaging.ModelTypeDevice,
	messaging.ModelTypeHub,
	messaging.ModelTypePerson,
	messaging.ModelTypePlace,
	messaging.ModelTypeSubsystem,
}

// RegistryConfig tunes the executor cache. Zero values take the defaults.
type RegistryConfig struct {
	MaxSize           int
	ExpireAfterAccess time.Duration
	InitialCapacity   int
	Concurrency       int

	// SoftValues enables eviction of least recently used executors while
	// the Go heap exceeds SoftHeapLimitBytes.
	SoftValues         bool
	SoftHeapLimitBytes uint64

	LoadTimeout time.Duration
	Executor    Config
}

// RegistryDeps holds the collaborators of a registry. Executor is used as
// the template for every executor built.
type RegistryDeps struct {
	Places   PlaceDAO
	Models   ModelLoader
	Executor Deps
}

// Registry caches one Executor per place.
//
// Lookups are safe for concurrent use. Concurrent lookups of the same
// uncached place share a single load. Failed loads are not cached. An
// executor leaving the cache for any reason is stopped before a new one
// for the same place is built.
type Registry struct {
	cfg    RegistryConfig
	places PlaceDAO
	models ModelLoader
	deps   Deps
	logger *slog.Logger

	cache *lru.Cache[string, *Executor]
	group singleflight.Group

	mu       sync.Mutex
	stopping map[string]chan struct{}
	reasons  map[string]string
	wg       sync.WaitGroup

	sweepCancel context.CancelFunc
	heapInUse   func() uint64
}

// NewRegistry creates a registry. A background sweeper expires idle
// executors, and relieves memory pressure when cfg.SoftValues is set, until
// Close.
func NewRegistry(cfg RegistryConfig, deps RegistryDeps) *Registry {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultCacheMaxSize
	}
	if cfg.ExpireAfterAccess <= 0 {
		cfg.ExpireAfterAccess = DefaultCacheExpireAfterAccess
	}
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = DefaultCacheInitialCapacity
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultCacheConcurrency
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if deps.Executor.Logger == nil {
		deps.Executor.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Executor.Metrics == nil {
		deps.Executor.Metrics = noopMetrics{}
	}

	r := &Registry{
		cfg:       cfg,
		places:    deps.Places,
		models:    deps.Models,
		deps:      deps.Executor,
		logger:    deps.Executor.Logger.With("component", "subsystem-registry"),
		stopping:  make(map[string]chan struct{}, cfg.Concurrency),
		reasons:   make(map[string]string, cfg.InitialCapacity),
		heapInUse: readHeapInUse,
	}
	cache, err := lru.NewWithEvict(cfg.MaxSize, r.onEvict)
	if err != nil {
		// MaxSize is positive after defaulting.
		panic(fmt.Sprintf("subsystem: building executor cache: %v", err))
	}
	r.cache = cache

	ctx, cancel := context.WithCancel(context.Background())
	r.sweepCancel = cancel
	r.wg.Add(1)
	go r.sweep(ctx)
	return r
}

// LoadByPlace returns the executor for placeID, building it on a miss.
// It returns false when the place or its account cannot be resolved or the
// load fails; nothing is cached in that case.
func (r *Registry) LoadByPlace(ctx context.Context, placeID string) (*Executor, bool) {
	return r.load(ctx, placeID, "")
}

// LoadByPlaceAndAccount is LoadByPlace with a known account id, which
// skips the account lookup. The place is still checked to exist.
func (r *Registry) LoadByPlaceAndAccount(ctx context.Context, placeID, accountID string) (*Executor, bool) {
	return r.load(ctx, placeID, accountID)
}

// RemoveByPlace evicts and stops the executor for placeID, if cached.
func (r *Registry) RemoveByPlace(placeID string) {
	r.evict(placeID, EvictExplicit)
}

// Clear evicts and stops every cached executor.
func (r *Registry) Clear() {
	for _, key := range r.cache.Keys() {
		r.RemoveByPlace(key)
	}
}

// Len returns the number of cached executors.
func (r *Registry) Len() int { return r.cache.Len() }

// Peek returns the cached executor for placeID without loading or
// refreshing it.
func (r *Registry) Peek(placeID string) (*Executor, bool) {
	return r.cache.Peek(placeID)
}

// Close stops the sweeper, evicts every executor and waits for them to stop.
func (r *Registry) Close() {
	if r.sweepCancel != nil {
		r.sweepCancel()
	}
	r.Clear()
	r.wg.Wait()
}

func (r *Registry) load(ctx context.Context, placeID, accountID string) (*Executor, bool) {
	if placeID == "" {
		return nil, false
	}
	if exec, ok := r.lookup(placeID); ok {
		r.deps.Metrics.CacheHit()
		return exec, true
	}
	r.deps.Metrics.CacheMiss()

	v, err, _ := r.group.Do(placeID, func() (any, error) {
		if exec, ok := r.lookup(placeID); ok {
			return exec, nil
		}
		// Only this flight adds placeID, so a stopped executor still cached
		// cannot be a fresh one.
		if stale, ok := r.cache.Peek(placeID); ok && stale.Stopped() {
			r.cache.Remove(placeID)
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LoadTimeout)
		defer cancel()

		r.awaitStop(loadCtx, placeID)
		exec, err := r.build(loadCtx, placeID, accountID)
		if err != nil {
			return nil, err
		}
		exec.touch()
		r.cache.Add(placeID, exec)
		return exec, nil
	})
	if err != nil {
		r.deps.Metrics.CacheLoadFailure()
		level := slog.LevelError
		if errors.Is(err, ErrPlaceNotFound) || errors.Is(err, ErrNoAccount) {
			level = slog.LevelWarn
		}
		r.logger.Log(ctx, level, "failed to load subsystem executor", "place_id", placeID, "error", err)
		return nil, false
	}
	return v.(*Executor), true
}

// lookup returns a live cached executor and records the access. It never
// writes to the cache: a stopped executor means the caller lost a race with
// eviction and must go through the load path.
func (r *Registry) lookup(placeID string) (*Executor, bool) {
	exec, ok := r.cache.Get(placeID)
	if !ok || exec.Stopped() {
		return nil, false
	}
	exec.touch()
	return exec, true
}

func (r *Registry) build(ctx context.Context, placeID, accountID string) (*Executor, error) {
	if accountID == "" {
		acct, err := r.places.FindAccountIDForPlace(ctx, placeID)
		if err != nil {
			return nil, wrapPlaceErr(placeID, err)
		}
		accountID = acct
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAccount, placeID)
	}

	p, err := r.places.FindByID(ctx, placeID)
	if err != nil {
		return nil, wrapPlaceErr(placeID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlaceNotFound, placeID)
	}

	loaded, err := r.models.LoadModelsByPlace(ctx, placeID, TrackedModelTypes)
	if err != nil {
		return nil, fmt.Errorf("loading models for place %s: %w", placeID, err)
	}
	models := make([]*model.Entity, 0, len(loaded))
	for _, m := range loaded {
		if !m.IsSubsystem() {
			m = model.Simple(m)
		}
		models = append(models, m)
	}

	exec := NewExecutor(PlaceInfo{
		ID:         p.ID,
		AccountID:  accountID,
		Population: p.Population,
	}, models, r.cfg.Executor, r.deps)
	if err := exec.Start(); err != nil {
		exec.Stop()
		return nil, fmt.Errorf("starting executor for place %s: %w", placeID, err)
	}
	r.logger.Info("subsystem executor loaded",
		"place_id", placeID,
		"models", len(models),
		"subsystems", len(exec.ordered),
	)
	return exec, nil
}

func wrapPlaceErr(placeID string, err error) error {
	if errors.Is(err, place.ErrPlaceNotFound) {
		return fmt.Errorf("%w: %s", ErrPlaceNotFound, placeID)
	}
	return fmt.Errorf("resolving place %s: %w", placeID, err)
}

// onEvict is the cache eviction callback. The executor is stopped on its
// own goroutine; a load of the same place waits for it.
func (r *Registry) onEvict(placeID string, exec *Executor) {
	if exec == nil {
		return
	}
	reason := r.takeReason(placeID)
	if reason == "" {
		if exec.Stopped() {
			return
		}
		reason = EvictSize
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.stopping[placeID] = done
	r.mu.Unlock()

	r.deps.Metrics.CacheEviction(reason)
	r.logger.Info("evicting subsystem executor", "place_id", placeID, "reason", reason)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		exec.Stop()
		r.mu.Lock()
		if r.stopping[placeID] == done {
			delete(r.stopping, placeID)
		}
		r.mu.Unlock()
		close(done)
	}()
}

// awaitStop blocks until a pending stop of placeID's previous executor
// finishes or ctx ends.
func (r *Registry) awaitStop(ctx context.Context, placeID string) {
	r.mu.Lock()
	done, ok := r.stopping[placeID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Registry) setReason(placeID, reason string) {
	r.mu.Lock()
	r.reasons[placeID] = reason
	r.mu.Unlock()
}

func (r *Registry) takeReason(placeID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason := r.reasons[placeID]
	delete(r.reasons, placeID)
	return reason
}

// sweep periodically expires idle executors and, with soft values on,
// evicts the least recently used ones while the heap is over its limit.
func (r *Registry) sweep(ctx context.Context) {
	defer r.wg.Done()
	interval := max(min(r.cfg.ExpireAfterAccess/4, maxSweepInterval), time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expire(time.Now())
			if r.cfg.SoftValues && r.cfg.SoftHeapLimitBytes > 0 {
				r.relieve()
			}
		}
	}
}

// expire evicts executors not accessed within ExpireAfterAccess of now.
// Keys run least recently used first, so the walk stops at the first
// executor still in use.
func (r *Registry) expire(now time.Time) {
	for _, key := range r.cache.Keys() {
		exec, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(exec.lastTouched()) < r.cfg.ExpireAfterAccess {
			return
		}
		r.evict(key, EvictExpired)
	}
}

func (r *Registry) evict(placeID, reason string) {
	r.setReason(placeID, reason)
	if !r.cache.Remove(placeID) {
		r.takeReason(placeID)
	}
}

// relieve evicts a fraction of the cache if the heap is over its limit.
func (r *Registry) relieve() {
	inUse := r.heapInUse()
	if inUse <= r.cfg.SoftHeapLimitBytes {
		return
	}
	n := max(r.cache.Len()/pressureEvictFraction, 1)
	r.logger.Warn("heap over limit, evicting subsystem executors",
		"heap_bytes", inUse,
		"limit_bytes", r.cfg.SoftHeapLimitBytes,
		"evicting", n,
	)
	keys := r.cache.Keys()
	for i := 0; i < n && i < len(keys); i++ {
		r.evict(keys[i], EvictMemory)
	}
}

func readHeapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}
