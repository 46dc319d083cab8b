package place

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

// DefaultPopulation is used for places created without a population.
const DefaultPopulation = "general"

// Place is a single home or site served by the platform.
type Place struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	Name       string    `json:"name"`
	Population string    `json:"population"`
	TimeZone   string    `json:"tz,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Address returns SERV:place:<id>.
func (p *Place) Address() messaging.Address {
	return messaging.PlaceAddress(p.ID)
}

// Validate checks the required fields.
func (p *Place) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPlace)
	}
	if p.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidPlace)
	}
	return nil
}
