package bus

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// Publisher publishes raw payloads. *mqtt.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
}

// Sender publishes platform messages on the bus.
type Sender struct {
	pub     Publisher
	qos     byte
	metrics Metrics
}

var _ subsystem.Sender = (*Sender)(nil)

// NewSender returns a Sender publishing with the given QoS. A nil m
// disables metrics.
func NewSender(pub Publisher, qos byte, m Metrics) *Sender {
	if m == nil {
		m = noopMetrics{}
	}
	return &Sender{pub: pub, qos: qos, metrics: m}
}

// Send encodes msg and publishes it, never retained.
func (s *Sender) Send(ctx context.Context, msg messaging.Message) error {
	payload, err := Encode(msg)
	if err != nil {
		s.metrics.MessageSent(err)
		return err
	}
	topic := TopicFor(msg)
	err = s.pub.Publish(ctx, topic, payload, s.qos, false)
	s.metrics.MessageSent(err)
	if err != nil {
		return fmt.Errorf("sending %s to %s: %w", msg.Type(), topic, err)
	}
	return nil
}
