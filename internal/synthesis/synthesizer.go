package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/estatehub/reportsweep/internal/inquiry"
)

const periodDateFormat = "2006-01-02"

// Synthesizer turns a property's aggregated events into a narrative and
// per-event summaries. The sweep orchestrator depends on this interface so
// tests can substitute a deterministic fake.
type Synthesizer interface {
	Synthesize(ctx context.Context, prop PropertyContext, events []inquiry.Event) (*Result, error)
}

// RemoteSynthesizer implements Synthesizer against the HTTP service
type RemoteSynthesizer struct {
	client *Client
}

// NewRemoteSynthesizer wraps a synthesis client
func NewRemoteSynthesizer(client *Client) *RemoteSynthesizer {
	return &RemoteSynthesizer{client: client}
}

// Synthesize runs the two remote calls in sequence: per-event summarization
// first (skipped when the window holds no events), then the aggregate
// narrative. Any failure aborts the run; nothing is partially applied.
func (s *RemoteSynthesizer) Synthesize(ctx context.Context, prop PropertyContext, events []inquiry.Event) (*Result, error) {
	var summaries []EventSummary

	if len(events) > 0 {
		resp, err := s.client.SummarizeEvents(ctx, buildSummarizeRequest(prop, events))
		if err != nil {
			return nil, err
		}
		summaries, err = matchSummaries(events, resp.Events)
		if err != nil {
			return nil, err
		}
	}

	resp, err := s.client.ComposeNarrative(ctx, buildNarrativeRequest(prop, events))
	if err != nil {
		return nil, err
	}
	if resp.Narrative == "" {
		return nil, fmt.Errorf("%w: empty narrative", ErrMalformedResponse)
	}

	return &Result{
		Narrative: resp.Narrative,
		Summaries: summaries,
	}, nil
}

func buildSummarizeRequest(prop PropertyContext, events []inquiry.Event) *SummarizeRequest {
	req := &SummarizeRequest{Events: make([]SummarizeEvent, 0, len(events))}
	for _, ev := range events {
		req.Events = append(req.Events, SummarizeEvent{
			EventID:            ev.EventID,
			CustomerID:         ev.CustomerID,
			CustomerName:       ev.CustomerName,
			PropertyName:       prop.PropertyName,
			EventType:          ev.EventType,
			Title:              ev.Title,
			Content:            ev.Content,
			Category:           ev.Category,
			Date:               ev.OccurredAt.UTC().Format(time.RFC3339),
			IsFirstInteraction: ev.IsFirstInteraction,
		})
	}
	return req
}

func buildNarrativeRequest(prop PropertyContext, events []inquiry.Event) *NarrativeRequest {
	req := &NarrativeRequest{
		PropertyID:   prop.PropertyID,
		PropertyName: prop.PropertyName,
		Counters:     prop.Counters,
		PeriodStart:  prop.PeriodStart.UTC().Format(periodDateFormat),
		PeriodEnd:    prop.PeriodEnd.UTC().Format(periodDateFormat),
		Events:       make([]NarrativeEvent, 0, len(events)),
	}
	for _, ev := range events {
		req.Events = append(req.Events, NarrativeEvent{
			CustomerID:   ev.CustomerID,
			CustomerName: ev.CustomerName,
			Timestamp:    ev.OccurredAt.UTC().Format(time.RFC3339),
			Category:     ev.Category,
			Content:      ev.Content,
		})
	}
	return req
}

// matchSummaries reorders the service's summaries to follow the input
// events. The service is allowed to reorder its response; event_id is the
// join key. A missing or unknown event_id is a contract violation.
func matchSummaries(events []inquiry.Event, got []EventSummary) ([]EventSummary, error) {
	if len(got) != len(events) {
		return nil, fmt.Errorf("%w: expected %d summaries, got %d", ErrMalformedResponse, len(events), len(got))
	}

	byID := make(map[string]EventSummary, len(got))
	for _, s := range got {
		if s.EventID == "" {
			return nil, fmt.Errorf("%w: summary without event_id", ErrMalformedResponse)
		}
		byID[s.EventID] = s
	}

	ordered := make([]EventSummary, 0, len(events))
	for _, ev := range events {
		s, ok := byID[ev.EventID]
		if !ok {
			return nil, fmt.Errorf("%w: no summary for event %s", ErrMalformedResponse, ev.EventID)
		}
		ordered = append(ordered, s)
	}
	return ordered, nil
}
