// Package synthesis wraps the remote narrative-synthesis service that turns
// raw interaction events into per-event summaries and a report narrative.
package synthesis

import "time"

// SummarizeEvent is one event submitted for per-event summarization
type SummarizeEvent struct {
	EventID            string `json:"event_id"`
	CustomerID         string `json:"customer_id"`
	CustomerName       string `json:"customer_name"`
	PropertyName       string `json:"property_name"`
	EventType          string `json:"event_type"`
	Title              string `json:"title"`
	Content            string `json:"content"`
	Category           string `json:"category"`
	Date               string `json:"date"`
	IsFirstInteraction bool   `json:"is_first_interaction"`
}

// SummarizeRequest is the per-event summarization request payload
type SummarizeRequest struct {
	Events []SummarizeEvent `json:"events"`
}

// EventSummary is one summarized event in the service's response
type EventSummary struct {
	EventID      string `json:"event_id"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Content      string `json:"content"`
}

// SummarizeResponse is the per-event summarization response payload
type SummarizeResponse struct {
	Events []EventSummary `json:"events"`
}

// Counters carries the property statistics for the aggregate narrative
type Counters struct {
	Views     int64 `json:"views"`
	Inquiries int64 `json:"inquiries"`
	Meetings  int64 `json:"meetings"`
	Viewings  int64 `json:"viewings"`
}

// NarrativeEvent is one event in the aggregate narrative request
type NarrativeEvent struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	Timestamp    string `json:"timestamp"`
	Category     string `json:"category"`
	Content      string `json:"content"`
}

// NarrativeRequest is the aggregate narrative request payload
type NarrativeRequest struct {
	PropertyID   string           `json:"property_id"`
	PropertyName string           `json:"property_name"`
	Counters     Counters         `json:"counters"`
	PeriodStart  string           `json:"period_start"`
	PeriodEnd    string           `json:"period_end"`
	Events       []NarrativeEvent `json:"events"`
}

// NarrativeResponse is the aggregate narrative response payload
type NarrativeResponse struct {
	Narrative string `json:"narrative"`
}

// PropertyContext carries the property and period a synthesis run describes
type PropertyContext struct {
	PropertyID   string
	PropertyName string
	Counters     Counters
	PeriodStart  time.Time
	PeriodEnd    time.Time
}

// Result is the outcome of a full synthesis run
type Result struct {
	Narrative string
	// Summaries are ordered by the input events' identity, regardless of the
	// order the remote service returned them in
	Summaries []EventSummary
}
