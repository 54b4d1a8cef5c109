package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/estatehub/reportsweep/internal/report"
)

// SaveReport persists a fully synthesized report and returns its identifier.
// The write is guarded with SETNX; an existing identifier is never
// overwritten.
func (s *RedisStore) SaveReport(ctx context.Context, rep *report.Report) (string, error) {
	data, err := s.serializer.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("failed to serialize report: %w", err)
	}

	pipe := s.client.Pipeline()
	setCmd := pipe.SetNX(ctx, s.reportKey(rep.ID), data, 0)
	pipe.ZAdd(ctx, s.reportIndexKey(rep.PropertyID), redis.Z{
		Score:  float64(rep.PeriodEnd.Unix()),
		Member: rep.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store report: %w", err)
	}
	if !setCmd.Val() {
		return "", ErrReportExists
	}

	s.log.Info("Report persisted",
		"report_id", rep.ID,
		"tenant_id", rep.TenantID,
		"property_id", rep.PropertyID,
		"interactions", len(rep.Interactions))
	return rep.ID, nil
}

// GetReport loads a report by identifier
func (s *RedisStore) GetReport(ctx context.Context, reportID string) (*report.Report, error) {
	data, err := s.client.Get(ctx, s.reportKey(reportID)).Bytes()
	if err == redis.Nil {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var rep report.Report
	if err := s.serializer.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to deserialize report: %w", err)
	}
	return &rep, nil
}

// ListReports returns report identifiers for a property whose period ended
// within [start, end], most recent last
func (s *RedisStore) ListReports(ctx context.Context, propertyID string, start, end time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.reportIndexKey(propertyID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", start.Unix()),
		Max: fmt.Sprintf("%d", end.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return ids, nil
}
