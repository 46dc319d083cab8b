package subsystem

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
	"github.com/nerrad567/gray-logic-subsystems/internal/place"
)

// Sender delivers outbound platform messages.
type Sender interface {
	Send(ctx context.Context, msg messaging.Message) error
}

// ModelDAO persists subsystem models.
type ModelDAO interface {
	// Save writes e, merging failed beneath its dirty attributes, and
	// returns the modification timestamp.
	Save(ctx context.Context, placeID string, e *model.Entity, failed map[string]any) (time.Time, error)
	DeleteByAddress(ctx context.Context, addr messaging.Address) error
}

// ModelLoader bulk-loads the models of a place.
type ModelLoader interface {
	LoadModelsByPlace(ctx context.Context, placeID string, types []string) ([]*model.Entity, error)
}

// PlaceDAO resolves places.
type PlaceDAO interface {
	FindAccountIDForPlace(ctx context.Context, placeID string) (string, error)
	FindByID(ctx context.Context, placeID string) (*place.Place, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg messaging.Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg messaging.Message) error {
	return f(ctx, msg)
}
