package subsystem

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
	"github.com/nerrad567/gray-logic-subsystems/internal/place"
)

var errSaveFailed = errors.New("save failed")

// fakeScheduler is a manual clock. Timers fire only from Advance.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock and runs every timer that came due.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(s.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of armed timers.
func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// recordingSender records every outbound message.
type recordingSender struct {
	mu   sync.Mutex
	sent []messaging.Message
}

func (s *recordingSender) Send(_ context.Context, msg messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]messaging.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *recordingSender) ofType(messageType string) []messaging.Message {
	var out []messaging.Message
	for _, m := range s.messages() {
		if m.Type() == messageType {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type saveCall struct {
	address messaging.Address
	dirty   map[string]any
	failed  map[string]any
}

// fakeDAO records saves and deletes. failSaves makes the next n saves fail.
type fakeDAO struct {
	mu        sync.Mutex
	saves     []saveCall
	deletes   []messaging.Address
	failSaves int
	now       time.Time
}

func newFakeDAO() *fakeDAO {
	return &fakeDAO{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
}

func (d *fakeDAO) Save(_ context.Context, _ string, e *model.Entity, failed map[string]any) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saves = append(d.saves, saveCall{
		address: e.Address(),
		dirty:   e.DirtyAttributes(),
		failed:  maps.Clone(failed),
	})
	if d.failSaves > 0 {
		d.failSaves--
		return time.Time{}, errSaveFailed
	}
	d.now = d.now.Add(time.Second)
	return d.now, nil
}

func (d *fakeDAO) DeleteByAddress(_ context.Context, addr messaging.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes = append(d.deletes, addr)
	return nil
}

func (d *fakeDAO) failNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSaves = n
}

func (d *fakeDAO) saveCalls() []saveCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]saveCall, len(d.saves))
	copy(out, d.saves)
	return out
}

func (d *fakeDAO) deleted() []messaging.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]messaging.Address, len(d.deletes))
	copy(out, d.deletes)
	return out
}

// recorder is a Subsystem that records events and runs an optional hook.
type recorder struct {
	namespace string

	mu     sync.Mutex
	events []Event
	hook   func(evt Event, sc *Context)
}

func newRecorder(namespace string) *recorder {
	return &recorder{namespace: namespace}
}

func (r *recorder) Name() string      { return r.namespace }
func (r *recorder) Namespace() string { return r.namespace }
func (r *recorder) Version() string   { return "1.0" }

func (r *recorder) OnEvent(evt Event, sc *Context) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(evt, sc)
	}
}

func (r *recorder) setHook(hook func(evt Event, sc *Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind())
	}
	return out
}

func (r *recorder) received() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// fakePlaces is an in-memory PlaceDAO.
type fakePlaces struct {
	mu     sync.Mutex
	places map[string]*place.Place
	err    error
}

func newFakePlaces(ids ...string) *fakePlaces {
	f := &fakePlaces{places: make(map[string]*place.Place)}
	for _, id := range ids {
		f.add(id)
	}
	return f
}

func (f *fakePlaces) add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.places[id] = &place.Place{ID: id, AccountID: "acct-" + id, Population: place.DefaultPopulation}
}

func (f *fakePlaces) FindAccountIDForPlace(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	p, ok := f.places[id]
	if !ok {
		return "", place.ErrPlaceNotFound
	}
	return p.AccountID, nil
}

func (f *fakePlaces) FindByID(_ context.Context, id string) (*place.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.places[id]
	if !ok {
		return nil, place.ErrPlaceNotFound
	}
	cp := *p
	return &cp, nil
}

// fakeLoader counts loads and can block them until released.
type fakeLoader struct {
	mu     sync.Mutex
	loads  int
	gate   chan struct{}
	models map[string][]*model.Entity
}

func (l *fakeLoader) LoadModelsByPlace(_ context.Context, placeID string, _ []string) ([]*model.Entity, error) {
	l.mu.Lock()
	l.loads++
	gate := l.gate
	models := l.models[placeID]
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return models, nil
}

func (l *fakeLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// harness wires one executor for place p1 to fakes.
type harness struct {
	exec   *Executor
	sender *recordingSender
	dao    *fakeDAO
	sched  *fakeScheduler
}

func newHarness(t *testing.T, cfg Config, subsystems ...Subsystem) *harness {
	t.Helper()
	h := &harness{
		sender: &recordingSender{},
		dao:    newFakeDAO(),
		sched:  newFakeScheduler(),
	}
	h.exec = NewExecutor(PlaceInfo{ID: "p1", AccountID: "a1", Population: "general"}, nil, cfg, Deps{
		Subsystems: subsystems,
		Models:     h.dao,
		Sender:     h.sender,
		Scheduler:  h.sched,
	})
	t.Cleanup(h.exec.Stop)
	return h
}

// do runs fn on the dispatch goroutine and waits for it.
func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	if err := h.exec.Do(fn); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

// flush waits until every previously queued event has been handled.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	h.do(t, func() {})
}

func (h *harness) submit(t *testing.T, msg messaging.Message) {
	t.Helper()
	if err := h.exec.OnPlatformMessage(msg); err != nil {
		t.Fatalf("OnPlatformMessage() error = %v", err)
	}
	h.flush(t)
}

func (h *harness) context(t *testing.T, namespace string) *Context {
	t.Helper()
	sc, ok := h.exec.Context(messaging.SubsystemAddress(namespace, "p1"))
	if !ok {
		t.Fatalf("no context for %s", namespace)
	}
	return sc
}

func clientAddress() messaging.Address {
	return messaging.Address{Group: messaging.GroupClient, Namespace: "app", ID: "c1"}
}

func request(to messaging.Address, messageType string, attrs map[string]any) messaging.Message {
	return messaging.NewRequest(clientAddress(), to, "p1", "general", messaging.NewBody(messageType, attrs))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
