package inquiry

import (
	"context"
	"fmt"
	"time"

	"github.com/estatehub/reportsweep/internal/logger"
)

// Aggregator collects a property's events for a report window and marks
// first-time customers
type Aggregator struct {
	repo Repository
	log  logger.Logger
}

// NewAggregator creates an aggregator over the given repository
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{
		repo: repo,
		log:  logger.Default().WithComponent(logger.ComponentStore),
	}
}

// Collect returns the property's events in [start, end), oldest first. An
// empty window is a valid result, not an error. For each customer's earliest
// event in the window, IsFirstInteraction is set when the customer has no
// history before the window.
func (a *Aggregator) Collect(ctx context.Context, propertyID string, start, end time.Time) ([]Event, error) {
	events, err := a.repo.ListByProperty(ctx, propertyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for property %s: %w", propertyID, err)
	}

	if len(events) == 0 {
		a.log.Debug("No events in report window",
			"property_id", propertyID,
			"window_start", start.Format(time.RFC3339),
			"window_end", end.Format(time.RFC3339))
		return events, nil
	}

	seen := make(map[string]bool, len(events))
	for i := range events {
		ev := &events[i]
		if seen[ev.CustomerID] {
			continue
		}
		seen[ev.CustomerID] = true

		prior, err := a.repo.CountBefore(ctx, propertyID, ev.CustomerID, start)
		if err != nil {
			return nil, fmt.Errorf("failed to check customer history for %s: %w", ev.CustomerID, err)
		}
		ev.IsFirstInteraction = prior == 0
	}

	return events, nil
}
