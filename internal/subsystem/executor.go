package subsystem

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
)

// Executor defaults.
const (
	DefaultQueueDepth     = 1000
	DefaultPersistTimeout = 5 * time.Second
	DefaultRetryDelay     = 100 * time.Millisecond

	// maxModelEventRounds bounds cascades of model events raised while
	// handling model events.
	maxModelEventRounds = 16

	tracerName = "github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// PlaceInfo identifies the place an executor serves.
type PlaceInfo struct {
	ID         string
	AccountID  string
	Population string
}

// Config tunes an executor. Zero values take the package defaults.
type Config struct {
	// QueueDepth is the maximum number of queued events.
	QueueDepth int

	// PersistTimeout bounds each persistence call.
	PersistTimeout time.Duration

	// RetryDelay is how long a timer waits before retrying a submission
	// rejected with ErrQueueFull.
	RetryDelay time.Duration
}

// Deps holds the collaborators of an executor.
type Deps struct {
	Subsystems []Subsystem
	Models     ModelDAO
	Sender     Sender
	Scheduler  Scheduler
	Logger     *slog.Logger
	Metrics    Metrics
	Tracer     trace.Tracer
}

type binding struct {
	subsystem Subsystem
	ctx       *Context
}

// Executor runs every subsystem of one place on a single dispatch goroutine.
//
// The exported entry points are safe for concurrent use. OnPlatformMessage,
// OnScheduledEvent and OnSubsystemResponse never block; they fail with
// ErrQueueFull when the queue is at capacity. Do, Start, Delete and Stop
// wait for their work to be handled and must not be called from subsystem
// code.
type Executor struct {
	place      PlaceInfo
	cfg        Config
	store      *model.Store
	bindings   map[messaging.Address]*binding
	ordered    []*binding
	correlator *Correlator

	dao       ModelDAO
	sender    Sender
	scheduler Scheduler
	logger    *slog.Logger
	metrics   Metrics
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan func()
	done   chan struct{}

	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	touched  atomic.Int64

	// Dispatch goroutine only.
	pendingModelEvents []model.Event
	nextWakeUp         uint64
}

// NewExecutor builds the executor for a place and starts its dispatch
// goroutine. models are the place's tracked models; subsystem models among
// them are bound to their contexts, and a fresh model is created for every
// subsystem without one. Start must be called before events are routed.
func NewExecutor(p PlaceInfo, models []*model.Entity, cfg Config, deps Deps) *Executor {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if deps.Scheduler == nil {
		deps.Scheduler = SystemScheduler()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		place:     p,
		cfg:       cfg,
		store:     model.NewSubsystemStore(),
		bindings:  make(map[messaging.Address]*binding, len(deps.Subsystems)),
		dao:       deps.Models,
		sender:    deps.Sender,
		scheduler: deps.Scheduler,
		logger:    deps.Logger.With("place_id", p.ID),
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		ctx:       ctx,
		cancel:    cancel,
		queue:     make(chan func(), cfg.QueueDepth),
		done:      make(chan struct{}),
	}
	e.correlator = NewCorrelator(deps.Scheduler, e.fireTimeout)
	e.store.AddModels(models)

	for _, s := range deps.Subsystems {
		addr := Address(s, p.ID)
		entity, ok := e.store.Get(addr)
		if !ok || !entity.Tracking() {
			entity = model.NewEntity(addr, messaging.ModelTypeSubsystem)
			e.store.AddModels([]*model.Entity{entity})
		}
		b := &binding{subsystem: s, ctx: newContext(e, entity)}
		e.bindings[addr] = b
		e.ordered = append(e.ordered, b)
	}

	e.store.AddListener(func(evt model.Event) {
		e.pendingModelEvents = append(e.pendingModelEvents, evt)
	})

	go e.loop()
	return e
}

// Place returns the place the executor serves.
func (e *Executor) Place() PlaceInfo { return e.place }

// Get returns the subsystem at addr.
func (e *Executor) Get(addr messaging.Address) (Subsystem, bool) {
	b, ok := e.bindings[addr]
	if !ok {
		return nil, false
	}
	return b.subsystem, true
}

// Context returns the context of the subsystem at addr. The context may
// only be used from the dispatch goroutine or after the executor stopped.
func (e *Executor) Context(addr messaging.Address) (*Context, bool) {
	b, ok := e.bindings[addr]
	if !ok {
		return nil, false
	}
	return b.ctx, true
}

// Addresses returns the addresses of every hosted subsystem.
func (e *Executor) Addresses() []messaging.Address {
	out := make([]messaging.Address, 0, len(e.ordered))
	for _, b := range e.ordered {
		out = append(out, b.ctx.Address())
	}
	return out
}

// QueueDepth returns the number of queued events.
func (e *Executor) QueueDepth() int { return len(e.queue) }

// Stopped reports whether Stop has been called.
func (e *Executor) Stopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

func (e *Executor) touch() { e.touched.Store(time.Now().UnixNano()) }

func (e *Executor) lastTouched() time.Time { return time.Unix(0, e.touched.Load()) }

// Snapshots returns the filtered attributes of every live subsystem model
// in dispatch order.
func (e *Executor) Snapshots() ([]map[string]any, error) {
	var out []map[string]any
	if err := e.Do(func() { out = e.snapshots() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Start delivers StartedEvent to every subsystem.
func (e *Executor) Start() error {
	return e.Do(func() { e.lifecycle(StartedEvent{}) })
}

// Delete delivers RemovedEvent to every subsystem and deletes their models.
func (e *Executor) Delete() error {
	return e.Do(e.removeAll)
}

// Stop delivers StoppedEvent to every subsystem, cancels all wake-ups and
// outstanding requests, and waits for the dispatch goroutine to exit.
// Events queued before Stop are still handled. Stop is idempotent.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()

		// No submitter can hold the queue now.
		e.queue <- func() {
			e.lifecycle(StoppedEvent{})
			for _, b := range e.ordered {
				b.ctx.CancelWakeUps()
			}
			e.correlator.CancelAll()
		}
		close(e.queue)
		<-e.done

		e.cancel()
		e.metrics.ForgetPlace(e.place.ID)
		e.logger.Info("subsystem executor stopped")
	})
}

// OnPlatformMessage queues a platform message addressed to the place.
func (e *Executor) OnPlatformMessage(msg messaging.Message) error {
	return e.submit(func() { e.handleMessage(msg) })
}

// OnScheduledEvent queues a wake-up for the subsystem at evt.Address.
func (e *Executor) OnScheduledEvent(evt ScheduledEvent) error {
	return e.submit(func() { e.handleScheduled(evt) })
}

// OnSubsystemResponse queues a response event. Timeout events are matched
// against the correlator and dropped when a response already arrived.
func (e *Executor) OnSubsystemResponse(evt ResponseEvent) error {
	return e.submit(func() { e.handleResponse(evt) })
}

func (e *Executor) submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return ErrExecutorStopped
	}
	select {
	case e.queue <- task:
		e.metrics.QueueDepth(e.place.ID, len(e.queue))
		return nil
	default:
		e.metrics.QueueRejected(e.place.ID)
		return ErrQueueFull
	}
}

// Do runs task on the dispatch goroutine and waits for it to finish. It
// waits for queue space rather than failing with ErrQueueFull. Do must not
// be called from subsystem code.
func (e *Executor) Do(task func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		task()
	}

	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return ErrExecutorStopped
	}
	e.queue <- wrapped
	e.mu.RUnlock()

	<-finished
	return nil
}

func (e *Executor) loop() {
	defer close(e.done)
	for task := range e.queue {
		e.metrics.QueueDepth(e.place.ID, len(e.queue))
		e.run(task)
	}
}

func (e *Executor) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in subsystem dispatch",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
	e.drainModelEvents()
}

// retryOnFull runs submit, re-arming it after the retry delay for as long
// as the queue is full.
func (e *Executor) retryOnFull(submit func() error) {
	if err := submit(); errors.Is(err, ErrQueueFull) {
		e.scheduler.AfterFunc(e.cfg.RetryDelay, func() { e.retryOnFull(submit) })
	}
}

// fireTimeout runs on a timer goroutine.
func (e *Executor) fireTimeout(correlationID string) {
	evt := ResponseEvent{CorrelationID: correlationID, TimedOut: true}
	e.retryOnFull(func() error { return e.OnSubsystemResponse(evt) })
}

func (e *Executor) scheduleWakeUp(sc *Context, at time.Time, d time.Duration) {
	e.nextWakeUp++
	evt := ScheduledEvent{Address: sc.Address(), Time: at, id: e.nextWakeUp}
	sc.wakeUps[evt.id] = e.scheduler.AfterFunc(d, func() {
		e.retryOnFull(func() error { return e.OnScheduledEvent(evt) })
	})
}

func (e *Executor) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(e.ctx, e.cfg.PersistTimeout)
}
