// Package report defines the immutable report artifact a successful sweep
// produces.
package report

import (
	"time"

	"github.com/google/uuid"
)

// InteractionSummary is one summarized customer interaction in a report
type InteractionSummary struct {
	EventID      string    `json:"event_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	Category     string    `json:"category"`
	Summary      string    `json:"summary"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Report is the output artifact of one successful rule run. It is immutable
// once persisted; the scheduler never updates a report after creation.
type Report struct {
	ID           string               `json:"id"`
	TenantID     string               `json:"tenant_id"`
	PropertyID   string               `json:"property_id"`
	PeriodStart  time.Time            `json:"period_start"`
	PeriodEnd    time.Time            `json:"period_end"`
	Narrative    string               `json:"narrative"`
	Interactions []InteractionSummary `json:"interactions"`
	CreatedAt    time.Time            `json:"created_at"`
}

// New creates a report with a generated identifier
func New(tenantID, propertyID string, periodStart, periodEnd time.Time, narrative string, interactions []InteractionSummary) *Report {
	if interactions == nil {
		interactions = []InteractionSummary{}
	}
	return &Report{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		PropertyID:   propertyID,
		PeriodStart:  periodStart.UTC(),
		PeriodEnd:    periodEnd.UTC(),
		Narrative:    narrative,
		Interactions: interactions,
		CreatedAt:    time.Now().UTC(),
	}
}
