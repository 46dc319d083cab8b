package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// Router defaults.
const (
	DefaultRedeliveryAttempts = 3
	DefaultRedeliveryDelay    = 250 * time.Millisecond
)

// Subscriber manages topic subscriptions. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Target accepts platform messages for one place. *subsystem.Executor
// implements it.
type Target interface {
	OnPlatformMessage(msg messaging.Message) error
}

// Resolver finds the Target of a place and invalidates it.
type Resolver interface {
	Resolve(ctx context.Context, placeID string) (Target, bool)
	Invalidate(placeID string)
}

// RegistryResolver adapts a subsystem.Registry to Resolver.
type RegistryResolver struct {
	Registry *subsystem.Registry
}

// Resolve loads the executor of placeID.
func (r RegistryResolver) Resolve(ctx context.Context, placeID string) (Target, bool) {
	exec, ok := r.Registry.LoadByPlace(ctx, placeID)
	if !ok {
		return nil, false
	}
	return exec, true
}

// Invalidate evicts and stops the executor of placeID.
func (r RegistryResolver) Invalidate(placeID string) {
	r.Registry.RemoveByPlace(placeID)
}

// RouterConfig tunes a Router. Zero values take the defaults.
type RouterConfig struct {
	// Namespaces are the SERV namespaces whose unicast traffic is routed.
	// Unicasts to other namespaces belong to other services and are ignored.
	Namespaces []string

	QoS                byte
	RedeliveryAttempts int
	RedeliveryDelay    time.Duration
}

// RouterDeps holds the collaborators of a Router.
type RouterDeps struct {
	Subscriber Subscriber
	Executors  Resolver
	Logger     *slog.Logger
	Metrics    Metrics
}

// Router delivers inbound bus traffic to place executors.
//
// HandleMessage is safe for concurrent use and never blocks on a full
// queue; redeliveries run on their own goroutines.
type Router struct {
	cfg       RouterConfig
	sub       Subscriber
	executors Resolver
	logger    *slog.Logger
	metrics   Metrics

	ctx    context.Context
	cancel context.CancelFunc
	topics []string
	wg     sync.WaitGroup
}

// NewRouter creates a router. Call Start to subscribe.
func NewRouter(cfg RouterConfig, deps RouterDeps) *Router {
	if cfg.RedeliveryAttempts <= 0 {
		cfg.RedeliveryAttempts = DefaultRedeliveryAttempts
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = DefaultRedeliveryDelay
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	return &Router{
		cfg:       cfg,
		sub:       deps.Subscriber,
		executors: deps.Executors,
		logger:    deps.Logger.With("component", "bus"),
		metrics:   deps.Metrics,
	}
}

// Start subscribes to the place broadcast and subsystem unicast topics.
// Redeliveries stop when ctx is cancelled or Close is called.
func (r *Router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	topics := mqtt.Topics{}
	r.topics = []string{
		topics.AllPlaceBroadcasts(),
		topics.AllPlaceUnicasts(messaging.GroupService),
	}
	for i, topic := range r.topics {
		if err := r.sub.Subscribe(topic, r.cfg.QoS, r.HandleMessage); err != nil {
			for _, done := range r.topics[:i] {
				_ = r.sub.Unsubscribe(done) //nolint:errcheck // best-effort rollback
			}
			r.cancel()
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	r.logger.Info("bus router started", "topics", r.topics, "namespaces", r.cfg.Namespaces)
	return nil
}

// Close unsubscribes, abandons pending redeliveries and waits for their
// goroutines to finish.
func (r *Router) Close() error {
	if r.cancel == nil {
		return nil
	}
	var errs []error
	for _, topic := range r.topics {
		if err := r.sub.Unsubscribe(topic); err != nil {
			errs = append(errs, err)
		}
	}
	r.cancel()
	r.wg.Wait()
	r.logger.Info("bus router stopped")
	return errors.Join(errs...)
}

// HandleMessage is the MQTT handler for platform topics.
func (r *Router) HandleMessage(topic string, payload []byte) error {
	if r.ctx == nil {
		return ErrNotStarted
	}

	pt, err := mqtt.ParseTopic(topic)
	if err != nil {
		r.metrics.MessageDropped(DropDecode)
		return err
	}
	if !pt.Broadcast && !r.serves(pt) {
		r.logger.Debug("unicast for another service ignored",
			"place_id", pt.PlaceID,
			"group", pt.Group,
			"namespace", pt.Namespace,
		)
		return nil
	}

	msg, err := Decode(payload)
	if err != nil {
		r.metrics.MessageDropped(DropDecode)
		return err
	}
	if msg.PlaceID != pt.PlaceID {
		r.metrics.MessageDropped(DropPlaceMismatch)
		return fmt.Errorf("%w: topic %q, payload %q", ErrPlaceMismatch, pt.PlaceID, msg.PlaceID)
	}

	r.metrics.MessageReceived(kindOf(msg))
	return r.deliver(msg, 1)
}

// serves reports whether a unicast topic is handled here. Alarm incident
// traffic is always accepted; the executor redirects it to the alarm
// subsystem.
func (r *Router) serves(pt mqtt.PlatformTopic) bool {
	if pt.Group != messaging.GroupService {
		return false
	}
	switch pt.Namespace {
	case messaging.NamespaceSubsystem, messaging.NamespaceAlarmIncident:
		return true
	}
	return slices.Contains(r.cfg.Namespaces, pt.Namespace)
}

// deliver makes one delivery attempt; attempt counts from 1.
func (r *Router) deliver(msg messaging.Message, attempt int) error {
	target, ok := r.executors.Resolve(r.ctx, msg.PlaceID)
	if !ok {
		r.metrics.MessageDropped(DropUnresolved)
		return fmt.Errorf("delivering %s to place %s: %w", msg.Type(), msg.PlaceID, subsystem.ErrPlaceNotFound)
	}

	err := target.OnPlatformMessage(msg)
	switch {
	case err == nil:
		if isPlaceDeletion(msg) {
			r.logger.Info("place deleted, invalidating executor", "place_id", msg.PlaceID)
			r.executors.Invalidate(msg.PlaceID)
		}
		return nil

	case errors.Is(err, subsystem.ErrExecutorStopped):
		// Evicted between lookup and submit; a fresh lookup builds a new one.
		if attempt >= r.cfg.RedeliveryAttempts {
			r.drop(msg, DropStopped, attempt)
			return err
		}
		return r.deliver(msg, attempt+1)

	case errors.Is(err, subsystem.ErrQueueFull):
		if attempt >= r.cfg.RedeliveryAttempts {
			r.drop(msg, DropQueueFull, attempt)
			return err
		}
		r.redeliverLater(msg, attempt+1)
		return nil

	default:
		r.drop(msg, DropRejected, attempt)
		return err
	}
}

func (r *Router) redeliverLater(msg messaging.Message, attempt int) {
	r.metrics.MessageRedelivered()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(r.cfg.RedeliveryDelay)
		defer timer.Stop()
		select {
		case <-r.ctx.Done():
			r.drop(msg, DropShutdown, attempt-1)
			return
		case <-timer.C:
		}
		if err := r.deliver(msg, attempt); err != nil {
			r.logger.Debug("redelivery failed", "place_id", msg.PlaceID, "attempt", attempt, "error", err)
		}
	}()
}

func (r *Router) drop(msg messaging.Message, reason string, attempts int) {
	r.metrics.MessageDropped(reason)
	r.logger.Warn("dropping platform message",
		"place_id", msg.PlaceID,
		"message_type", msg.Type(),
		"source", msg.Source.String(),
		"destination", msg.Destination.String(),
		"correlation_id", msg.CorrelationID,
		"reason", reason,
		"attempts", attempts,
	)
}

func isPlaceDeletion(msg messaging.Message) bool {
	return msg.IsBroadcast() &&
		msg.Type() == messaging.EventDeleted &&
		msg.Source == messaging.PlaceAddress(msg.PlaceID)
}
