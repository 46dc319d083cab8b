package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

// envelope is the JSON form of a platform message on the wire.
//
// Addresses travel in their GROUP:NAMESPACE:ID text form; an empty or
// missing destination is the broadcast address.
type envelope struct {
	ID            string         `json:"id"`
	Source        string         `json:"source"`
	Destination   string         `json:"destination,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	Type          string         `json:"type"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	PlaceID       string         `json:"place_id"`
	Population    string         `json:"population,omitempty"`
	TTL           int64          `json:"ttl_ms,omitempty"`
	Request       bool           `json:"request,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Encode returns the wire form of msg.
func Encode(msg messaging.Message) ([]byte, error) {
	env := envelope{
		ID:            msg.ID,
		Source:        msg.Source.String(),
		Destination:   msg.Destination.String(),
		Actor:         msg.Actor.String(),
		Type:          msg.Body.Type,
		Attributes:    msg.Body.Attributes,
		CorrelationID: msg.CorrelationID,
		PlaceID:       msg.PlaceID,
		Population:    msg.Population,
		TTL:           msg.TimeToLive.Milliseconds(),
		Request:       msg.Request,
		Timestamp:     msg.Timestamp,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", msg.Body.Type, err)
	}
	return data, nil
}

// Decode parses and validates a wire payload.
func Decode(payload []byte) (messaging.Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return messaging.Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	var addrs [3]messaging.Address
	for i, raw := range []string{env.Source, env.Destination, env.Actor} {
		addr, err := messaging.ParseAddress(raw)
		if err != nil {
			return messaging.Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		addrs[i] = addr
	}

	msg := messaging.Message{
		ID:            env.ID,
		Source:        addrs[0],
		Destination:   addrs[1],
		Actor:         addrs[2],
		Body:          messaging.Body{Type: env.Type, Attributes: env.Attributes},
		CorrelationID: env.CorrelationID,
		PlaceID:       env.PlaceID,
		Population:    env.Population,
		TimeToLive:    time.Duration(env.TTL) * time.Millisecond,
		Request:       env.Request,
		Timestamp:     env.Timestamp,
	}
	if err := msg.Validate(); err != nil {
		return messaging.Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return msg, nil
}

// TopicFor returns the topic msg is published on: the place broadcast
// topic, or the unicast topic of the destination's namespace.
func TopicFor(msg messaging.Message) string {
	topics := mqtt.Topics{}
	if msg.IsBroadcast() {
		return topics.PlaceBroadcast(msg.PlaceID)
	}
	return topics.PlaceUnicast(msg.PlaceID, msg.Destination.Group, msg.Destination.Namespace)
}

// Message kinds used as metric labels.
const (
	KindBroadcast = "broadcast"
	KindRequest   = "request"
	KindResponse  = "response"
	KindMessage   = "message"
)

func kindOf(msg messaging.Message) string {
	switch {
	case msg.IsBroadcast():
		return KindBroadcast
	case msg.Request:
		return KindRequest
	case msg.CorrelationID != "":
		return KindResponse
	default:
		return KindMessage
	}
}
