package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystems"
)

const testPlace = "place-1"

var (
	alarmAddr = messaging.SubsystemAddress(messaging.NamespaceAlarm, testPlace)
	devAddr   = messaging.DriverAddress("dev-7")
)

// fakeSubscriber records subscriptions.
type fakeSubscriber struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	failOn       string
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic == f.failOn {
		return errors.New("broker refused")
	}
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

// fakeTarget returns queued results in order, then nil.
type fakeTarget struct {
	mu       sync.Mutex
	results  []error
	received []messaging.Message
	accepted chan messaging.Message
}

func newFakeTarget(results ...error) *fakeTarget {
	return &fakeTarget{results: results, accepted: make(chan messaging.Message, 16)}
}

func (f *fakeTarget) OnPlatformMessage(msg messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msg)
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return err
		}
	}
	f.accepted <- msg
	return nil
}

func (f *fakeTarget) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

// fakeResolver hands out targets in order; the last one is reused.
type fakeResolver struct {
	mu          sync.Mutex
	targets     []*fakeTarget
	resolved    int
	invalidated []string
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targets) == 0 {
		return nil, false
	}
	i := min(f.resolved, len(f.targets)-1)
	f.resolved++
	return f.targets[i], true
}

func (f *fakeResolver) Invalidate(placeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, placeID)
}

// recordingMetrics counts bus observations.
type recordingMetrics struct {
	mu          sync.Mutex
	received    []string
	redelivered int
	dropped     []string
	sent        []bool
}

func (m *recordingMetrics) MessageReceived(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, kind)
}

func (m *recordingMetrics) MessageRedelivered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redelivered++
}

func (m *recordingMetrics) MessageDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, reason)
}

func (m *recordingMetrics) MessageSent(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, err == nil)
}

func (m *recordingMetrics) drops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dropped...)
}

type routerFixture struct {
	router   *Router
	sub      *fakeSubscriber
	resolver *fakeResolver
	metrics  *recordingMetrics
}

func newRouterFixture(t *testing.T, cfg RouterConfig, targets ...*fakeTarget) *routerFixture {
	t.Helper()
	f := &routerFixture{
		sub:      &fakeSubscriber{},
		resolver: &fakeResolver{targets: targets},
		metrics:  &recordingMetrics{},
	}
	if cfg.Namespaces == nil {
		cfg.Namespaces = []string{messaging.NamespaceAlarm}
	}
	if cfg.RedeliveryDelay == 0 {
		cfg.RedeliveryDelay = time.Millisecond
	}
	f.router = NewRouter(cfg, RouterDeps{
		Subscriber: f.sub,
		Executors:  f.resolver,
		Metrics:    f.metrics,
	})
	if err := f.router.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = f.router.Close() })
	return f
}

func encode(t *testing.T, msg messaging.Message) []byte {
	t.Helper()
	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return payload
}

func valueChange() messaging.Message {
	return messaging.NewBroadcast(devAddr, testPlace, "home", messaging.NewBody(messaging.EventValueChange, map[string]any{
		"dev:temperature": 21.5,
	}))
}

func waitAccepted(t *testing.T, target *fakeTarget) messaging.Message {
	t.Helper()
	select {
	case msg := <-target.accepted:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
		return messaging.Message{}
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	req := messaging.NewRequest(devAddr, alarmAddr, testPlace, "home", messaging.NewBody(messaging.SubsystemSuspend, map[string]any{
		"reason": "maintenance",
		"nested": map[string]any{"level": 2.0},
	}))
	req.CorrelationID = "corr-1"
	req.Actor = messaging.ServiceAddress(messaging.ModelTypePerson, "u1")
	req.TimeToLive = 1500 * time.Millisecond

	got, err := Decode(encode(t, req))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_BroadcastHasNoDestination(t *testing.T) {
	payload := encode(t, valueChange())
	if strings.Contains(string(payload), `"destination"`) {
		t.Errorf("broadcast payload carries a destination: %s", payload)
	}
	msg, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !msg.IsBroadcast() {
		t.Error("decoded message should be a broadcast")
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"bad source", `{"source":"nope","type":"base:ValueChange","place_id":"p"}`},
		{"bad destination", `{"destination":"XX:y:z","type":"base:ValueChange","place_id":"p"}`},
		{"missing type", `{"place_id":"p"}`},
		{"missing place", `{"type":"base:ValueChange"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestTopicFor(t *testing.T) {
	tests := []struct {
		name string
		msg  messaging.Message
		want string
	}{
		{"broadcast", valueChange(), "graylogic/platform/place-1/broadcast"},
		{
			"unicast",
			messaging.NewRequest(devAddr, alarmAddr, testPlace, "", messaging.NewBody(messaging.GetAttributes, nil)),
			"graylogic/platform/place-1/to/SERV/subalarm",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopicFor(tt.msg); got != tt.want {
				t.Errorf("TopicFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	req := messaging.NewRequest(devAddr, alarmAddr, testPlace, "", messaging.NewBody(messaging.GetAttributes, nil))
	resp := messaging.NewResponse(req, alarmAddr, messaging.NewBody(messaging.GetAttributesResponse, nil))
	plain := messaging.Message{Destination: alarmAddr}

	tests := []struct {
		msg  messaging.Message
		want string
	}{
		{valueChange(), KindBroadcast},
		{req, KindRequest},
		{resp, KindResponse},
		{plain, KindMessage},
	}
	for _, tt := range tests {
		if got := kindOf(tt.msg); got != tt.want {
			t.Errorf("kindOf(%v) = %q, want %q", tt.msg.Type(), got, tt.want)
		}
	}
}

type fakePublisher struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte, qos byte, retained bool) error {
	f.topic, f.payload, f.qos, f.retained = topic, payload, qos, retained
	return f.err
}

func TestSender_Send(t *testing.T) {
	pub := &fakePublisher{}
	m := &recordingMetrics{}
	s := NewSender(pub, 1, m)

	msg := valueChange()
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if pub.topic != "graylogic/platform/place-1/broadcast" {
		t.Errorf("topic = %q", pub.topic)
	}
	if pub.qos != 1 || pub.retained {
		t.Errorf("qos = %d, retained = %v; want 1, false", pub.qos, pub.retained)
	}
	got, err := Decode(pub.payload)
	if err != nil {
		t.Fatalf("published payload does not decode: %v", err)
	}
	if got.ID != msg.ID {
		t.Errorf("published id = %q, want %q", got.ID, msg.ID)
	}
	if diff := cmp.Diff([]bool{true}, m.sent); diff != "" {
		t.Errorf("sent metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestSender_PublishFailure(t *testing.T) {
	pub := &fakePublisher{err: mqtt.ErrNotConnected}
	m := &recordingMetrics{}
	s := NewSender(pub, 1, m)

	err := s.Send(context.Background(), valueChange())
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Send() error = %v, want ErrNotConnected", err)
	}
	if diff := cmp.Diff([]bool{false}, m.sent); diff != "" {
		t.Errorf("sent metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_StartAndClose(t *testing.T) {
	sub := &fakeSubscriber{}
	r := NewRouter(RouterConfig{}, RouterDeps{Subscriber: sub, Executors: &fakeResolver{}})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	want := []string{"graylogic/platform/+/broadcast", "graylogic/platform/+/to/SERV/+"}
	if diff := cmp.Diff(want, sub.subscribed); diff != "" {
		t.Errorf("subscriptions mismatch (-want +got):\n%s", diff)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if diff := cmp.Diff(want, sub.unsubscribed); diff != "" {
		t.Errorf("unsubscriptions mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_StartRollsBackOnFailure(t *testing.T) {
	sub := &fakeSubscriber{failOn: "graylogic/platform/+/to/SERV/+"}
	r := NewRouter(RouterConfig{}, RouterDeps{Subscriber: sub, Executors: &fakeResolver{}})
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail")
	}
	if diff := cmp.Diff([]string{"graylogic/platform/+/broadcast"}, sub.unsubscribed); diff != "" {
		t.Errorf("rollback mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_NotStarted(t *testing.T) {
	r := NewRouter(RouterConfig{}, RouterDeps{Subscriber: &fakeSubscriber{}, Executors: &fakeResolver{}})
	if err := r.HandleMessage("graylogic/platform/p/broadcast", nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("HandleMessage() error = %v, want ErrNotStarted", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

func TestRouter_DeliversBroadcast(t *testing.T) {
	target := newFakeTarget()
	f := newRouterFixture(t, RouterConfig{}, target)

	msg := valueChange()
	if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	got := waitAccepted(t, target)
	if got.ID != msg.ID {
		t.Errorf("delivered id = %q, want %q", got.ID, msg.ID)
	}
	if diff := cmp.Diff([]string{KindBroadcast}, f.metrics.received); diff != "" {
		t.Errorf("received metrics mismatch (-want +got):\n%s", diff)
	}
	if len(f.resolver.invalidated) != 0 {
		t.Errorf("invalidated = %v, want none", f.resolver.invalidated)
	}
}

func TestRouter_UnicastNamespaces(t *testing.T) {
	tests := []struct {
		name      string
		dest      messaging.Address
		delivered bool
	}{
		{"hosted subsystem", alarmAddr, true},
		{"subsystem service", messaging.SubsystemServiceAddress(), true},
		{"alarm incident", messaging.ServiceAddress(messaging.NamespaceAlarmIncident, "inc-1"), true},
		{"other service", messaging.ServiceAddress("scheduler", testPlace), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newFakeTarget()
			f := newRouterFixture(t, RouterConfig{}, target)

			msg := messaging.NewRequest(devAddr, tt.dest, testPlace, "", messaging.NewBody(messaging.GetAttributes, nil))
			if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}
			if got := target.attempts() == 1; got != tt.delivered {
				t.Errorf("delivered = %v, want %v", got, tt.delivered)
			}
		})
	}
}

func TestRouter_IncidentRequestWithCatalogNamespaces(t *testing.T) {
	var namespaces []string
	for _, s := range subsystems.All() {
		namespaces = append(namespaces, s.Namespace())
	}
	target := newFakeTarget()
	f := newRouterFixture(t, RouterConfig{Namespaces: namespaces}, target)

	incident := messaging.ServiceAddress(messaging.NamespaceAlarmIncident, "inc-1")
	msg := messaging.NewRequest(devAddr, incident, testPlace, "", messaging.NewBody("alarm:incident:Cancel", nil))
	topic := TopicFor(msg)
	if !strings.HasSuffix(topic, "/SERV/incident") {
		t.Fatalf("TopicFor() = %q, want an incident unicast topic", topic)
	}
	if err := f.router.HandleMessage(topic, encode(t, msg)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := waitAccepted(t, target); got.Destination != incident {
		t.Errorf("destination = %v, want %v", got.Destination, incident)
	}
}

func TestRouter_RejectsBadInput(t *testing.T) {
	good := valueChange()
	other := valueChange()
	other.PlaceID = "place-2"

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
		drop    string
	}{
		{"bad topic", "graylogic/elsewhere", encode(t, good), mqtt.ErrInvalidTopic, DropDecode},
		{"bad payload", TopicFor(good), []byte("not json"), ErrDecode, DropDecode},
		{"place mismatch", TopicFor(good), encode(t, other), ErrPlaceMismatch, DropPlaceMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newFakeTarget()
			f := newRouterFixture(t, RouterConfig{}, target)

			err := f.router.HandleMessage(tt.topic, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleMessage() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff([]string{tt.drop}, f.metrics.drops()); diff != "" {
				t.Errorf("drops mismatch (-want +got):\n%s", diff)
			}
			if target.attempts() != 0 {
				t.Error("rejected input reached the executor")
			}
		})
	}
}

func TestRouter_UnresolvedPlace(t *testing.T) {
	f := newRouterFixture(t, RouterConfig{})

	msg := valueChange()
	err := f.router.HandleMessage(TopicFor(msg), encode(t, msg))
	if !errors.Is(err, subsystem.ErrPlaceNotFound) {
		t.Errorf("HandleMessage() error = %v, want ErrPlaceNotFound", err)
	}
	if diff := cmp.Diff([]string{DropUnresolved}, f.metrics.drops()); diff != "" {
		t.Errorf("drops mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_RedeliversOnFullQueue(t *testing.T) {
	target := newFakeTarget(subsystem.ErrQueueFull, subsystem.ErrQueueFull)
	f := newRouterFixture(t, RouterConfig{RedeliveryAttempts: 3}, target)

	msg := valueChange()
	if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	waitAccepted(t, target)

	if err := f.router.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := target.attempts(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if f.metrics.redelivered != 2 {
		t.Errorf("redelivered = %d, want 2", f.metrics.redelivered)
	}
	if drops := f.metrics.drops(); len(drops) != 0 {
		t.Errorf("drops = %v, want none", drops)
	}
}

func TestRouter_DropsAfterRedeliveryAttempts(t *testing.T) {
	target := newFakeTarget(subsystem.ErrQueueFull, subsystem.ErrQueueFull, subsystem.ErrQueueFull)
	f := newRouterFixture(t, RouterConfig{RedeliveryAttempts: 2}, target)

	msg := valueChange()
	if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.metrics.drops()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := f.router.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := target.attempts(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
	if diff := cmp.Diff([]string{DropQueueFull}, f.metrics.drops()); diff != "" {
		t.Errorf("drops mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_CloseAbandonsPendingRedelivery(t *testing.T) {
	target := newFakeTarget(subsystem.ErrQueueFull)
	f := newRouterFixture(t, RouterConfig{RedeliveryDelay: time.Hour}, target)

	msg := valueChange()
	if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := f.router.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if diff := cmp.Diff([]string{DropShutdown}, f.metrics.drops()); diff != "" {
		t.Errorf("drops mismatch (-want +got):\n%s", diff)
	}
	if got := target.attempts(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestRouter_ReresolvesStoppedExecutor(t *testing.T) {
	stale := newFakeTarget(subsystem.ErrExecutorStopped)
	fresh := newFakeTarget()
	f := newRouterFixture(t, RouterConfig{}, stale, fresh)

	msg := valueChange()
	if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	waitAccepted(t, fresh)
	if f.resolver.resolved != 2 {
		t.Errorf("resolved = %d, want 2", f.resolver.resolved)
	}
}

func TestRouter_OtherRejectionIsDropped(t *testing.T) {
	boom := errors.New("boom")
	target := newFakeTarget(boom)
	f := newRouterFixture(t, RouterConfig{}, target)

	msg := valueChange()
	if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); !errors.Is(err, boom) {
		t.Errorf("HandleMessage() error = %v, want boom", err)
	}
	if diff := cmp.Diff([]string{DropRejected}, f.metrics.drops()); diff != "" {
		t.Errorf("drops mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_PlaceDeletionInvalidates(t *testing.T) {
	tests := []struct {
		name       string
		source     messaging.Address
		invalidate bool
	}{
		{"own place", messaging.PlaceAddress(testPlace), true},
		{"other place", messaging.PlaceAddress("place-9"), false},
		{"device", devAddr, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := newFakeTarget()
			f := newRouterFixture(t, RouterConfig{}, target)

			msg := messaging.NewBroadcast(tt.source, testPlace, "", messaging.NewBody(messaging.EventDeleted, nil))
			if err := f.router.HandleMessage(TopicFor(msg), encode(t, msg)); err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}
			waitAccepted(t, target)

			var want []string
			if tt.invalidate {
				want = []string{testPlace}
			}
			if diff := cmp.Diff(want, f.resolver.invalidated); diff != "" {
				t.Errorf("invalidated mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
