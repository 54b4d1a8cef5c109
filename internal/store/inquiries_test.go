package store

import (
	"context"
	"testing"
	"time"

	"github.com/estatehub/reportsweep/internal/inquiry"
)

func testEvent(id, customerID string, at time.Time) inquiry.Event {
	return inquiry.Event{
		EventID:      id,
		PropertyID:   "prop-1",
		CustomerID:   customerID,
		CustomerName: "Tanaka",
		EventType:    "email",
		Category:     inquiry.CategoryInquiry,
		Content:      "Is the unit still available?",
		OccurredAt:   at,
	}
}

func TestAddEvent_RequiresIdentity(t *testing.T) {
	st, mr := setupTestStore(t)
	defer mr.Close()
	defer st.Close()

	if err := st.AddEvent(context.Background(), inquiry.Event{PropertyID: "prop-1"}); err == nil {
		t.Fatal("expected error for event without event_id")
	}
}

func TestListByProperty_WindowBoundaries(t *testing.T) {
	st, mr := setupTestStore(t)
	defer mr.Close()
	defer st.Close()

	ctx := context.Background()
	start := time.Date(2024, 11, 24, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)

	events := []inquiry.Event{
		testEvent("ev-before", "cust-1", start.Add(-time.Hour)),
		testEvent("ev-at-start", "cust-1", start),
		testEvent("ev-inside", "cust-2", start.Add(48*time.Hour)),
		testEvent("ev-at-end", "cust-2", end),
	}
	for _, ev := range events {
		if err := st.AddEvent(ctx, ev); err != nil {
			t.Fatalf("failed to add event %s: %v", ev.EventID, err)
		}
	}

	got, err := st.ListByProperty(ctx, "prop-1", start, end)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}

	// Window is [start, end): the start boundary is included, the end
	// boundary belongs to the next period
	if len(got) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(got))
	}
	if got[0].EventID != "ev-at-start" || got[1].EventID != "ev-inside" {
		t.Errorf("unexpected events: %s, %s", got[0].EventID, got[1].EventID)
	}
}

func TestListByProperty_EmptyWindow(t *testing.T) {
	st, mr := setupTestStore(t)
	defer mr.Close()
	defer st.Close()

	got, err := st.ListByProperty(context.Background(), "prop-1",
		time.Date(2024, 11, 24, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("empty window must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestCountBefore(t *testing.T) {
	st, mr := setupTestStore(t)
	defer mr.Close()
	defer st.Close()

	ctx := context.Background()
	cutoff := time.Date(2024, 11, 24, 9, 0, 0, 0, time.UTC)

	events := []inquiry.Event{
		testEvent("ev-1", "cust-1", cutoff.Add(-72*time.Hour)),
		testEvent("ev-2", "cust-1", cutoff.Add(-24*time.Hour)),
		testEvent("ev-3", "cust-2", cutoff.Add(-24*time.Hour)),
		testEvent("ev-4", "cust-1", cutoff), // at the cutoff, not before
	}
	for _, ev := range events {
		if err := st.AddEvent(ctx, ev); err != nil {
			t.Fatalf("failed to add event %s: %v", ev.EventID, err)
		}
	}

	count, err := st.CountBefore(ctx, "prop-1", "cust-1", cutoff)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 prior events for cust-1, got %d", count)
	}

	count, err = st.CountBefore(ctx, "prop-1", "cust-3", cutoff)
	if err != nil {
		t.Fatalf("failed to count events: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 prior events for unknown customer, got %d", count)
	}
}
