package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/estatehub/reportsweep/internal/inquiry"
)

// AddEvent records an interaction event for a property. Events live in a
// per-property sorted set scored by occurrence time.
func (s *RedisStore) AddEvent(ctx context.Context, ev inquiry.Event) error {
	if ev.EventID == "" || ev.PropertyID == "" {
		return fmt.Errorf("event requires event_id and property_id")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = s.client.ZAdd(ctx, s.inquiryKey(ev.PropertyID), redis.Z{
		Score:  float64(ev.OccurredAt.Unix()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// ListByProperty returns a property's events with start <= occurred_at < end,
// oldest first. Implements the inquiry.Repository port.
func (s *RedisStore) ListByProperty(ctx context.Context, propertyID string, start, end time.Time) ([]inquiry.Event, error) {
	members, err := s.client.ZRangeByScore(ctx, s.inquiryKey(propertyID), &redis.ZRangeBy{
		Min: strconv.FormatInt(start.Unix(), 10),
		Max: "(" + strconv.FormatInt(end.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]inquiry.Event, 0, len(members))
	for _, member := range members {
		var ev inquiry.Event
		if err := json.Unmarshal([]byte(member), &ev); err != nil {
			s.log.Warn("Dropping malformed event record", "property_id", propertyID)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// CountBefore returns how many events a customer had for a property strictly
// before the given instant
func (s *RedisStore) CountBefore(ctx context.Context, propertyID, customerID string, before time.Time) (int64, error) {
	members, err := s.client.ZRangeByScore(ctx, s.inquiryKey(propertyID), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to query event history: %w", err)
	}

	var count int64
	for _, member := range members {
		var ev inquiry.Event
		if err := json.Unmarshal([]byte(member), &ev); err != nil {
			continue
		}
		if ev.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}
