package domain

import "time"

// Outcome is what the dispatcher decided for one queue message.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDropped   Outcome = "dropped"
	OutcomeRetry     Outcome = "retry"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeDelivered, OutcomeDropped, OutcomeRetry:
		return true
	}
	return false
}

// Delivery is one entry of the delivery log. It keeps routing metadata and
// the item link only; item bodies stay in the queue.
type Delivery struct {
	ID           string    `json:"id"`
	MessageID    string    `json:"message_id"`
	Filter       string    `json:"filter,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	ItemURL      string    `json:"item_url,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// DeliveryFilter holds query parameters for listing the delivery log.
type DeliveryFilter struct {
	Outcome *Outcome
	Filter  string
	Limit   int
}
