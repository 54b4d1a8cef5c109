// Package inquiry models customer interaction events and aggregates them
// into the time window a report covers.
package inquiry

import (
	"context"
	"time"
)

// Event is a single customer interaction with a property: an inquiry, a
// viewing request, a meeting note and so on.
type Event struct {
	EventID      string    `json:"event_id"`
	PropertyID   string    `json:"property_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	EventType    string    `json:"event_type"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	Content      string    `json:"content"`
	OccurredAt   time.Time `json:"occurred_at"`

	// IsFirstInteraction marks the customer's first-ever event for this
	// property. Set by the aggregator, not persisted.
	IsFirstInteraction bool `json:"-"`
}

// Categories recorded by the inquiry intake flow
const (
	CategoryInquiry = "inquiry"
	CategoryViewing = "viewing"
	CategoryMeeting = "meeting"
	CategoryView    = "view"
)

// Repository is the persistence port the aggregator reads from
type Repository interface {
	// ListByProperty returns events for a property with start <= occurred_at < end,
	// ordered by occurrence time ascending
	ListByProperty(ctx context.Context, propertyID string, start, end time.Time) ([]Event, error)

	// CountBefore returns the number of events a customer had for a property
	// strictly before the given instant
	CountBefore(ctx context.Context, propertyID, customerID string, before time.Time) (int64, error)
}
