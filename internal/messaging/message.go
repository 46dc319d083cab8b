package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is an addressed platform message.
type Message struct {
	ID            string
	Source        Address
	Destination   Address
	Actor         Address
	Body          Body
	CorrelationID string
	PlaceID       string
	Population    string
	TimeToLive    time.Duration
	Request       bool
	Timestamp     time.Time
}

// Type returns the message type, which is the type of its body.
func (m Message) Type() string {
	return m.Body.Type
}

// IsBroadcast reports whether the message is destined for every listener.
func (m Message) IsBroadcast() bool {
	return m.Destination.IsBroadcast()
}

// IsError reports whether the message carries an error body.
func (m Message) IsError() bool {
	return m.Body.IsError()
}

// Expired reports whether the message time-to-live has elapsed at now.
func (m Message) Expired(now time.Time) bool {
	if m.TimeToLive <= 0 || m.Timestamp.IsZero() {
		return false
	}
	return now.After(m.Timestamp.Add(m.TimeToLive))
}

// Validate checks the fields every routed message must carry.
func (m Message) Validate() error {
	if m.Body.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	if m.PlaceID == "" {
		return fmt.Errorf("%w: missing place id", ErrInvalidMessage)
	}
	return nil
}

// NewCorrelationID returns a fresh correlation identifier.
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewBroadcast builds a broadcast event from source.
func NewBroadcast(source Address, placeID, population string, body Body) Message {
	return Message{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: Broadcast(),
		Body:        body,
		PlaceID:     placeID,
		Population:  population,
		Timestamp:   time.Now().UTC(),
	}
}

// NewRequest builds a request from source to destination.
func NewRequest(source, destination Address, placeID, population string, body Body) Message {
	return Message{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: destination,
		Body:        body,
		PlaceID:     placeID,
		Population:  population,
		Request:     true,
		Timestamp:   time.Now().UTC(),
	}
}

// NewResponse builds the response to request, sent from source.
// The correlation id of the request is carried over; when the request
// had none its message id is used so the requester can still match it.
func NewResponse(request Message, source Address, body Body) Message {
	correlationID := request.CorrelationID
	if correlationID == "" {
		correlationID = request.ID
	}
	return Message{
		ID:            uuid.NewString(),
		Source:        source,
		Destination:   request.Source,
		Body:          body,
		CorrelationID: correlationID,
		PlaceID:       request.PlaceID,
		Population:    request.Population,
		Timestamp:     time.Now().UTC(),
	}
}
