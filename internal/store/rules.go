package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/estatehub/reportsweep/internal/rule"
)

// CreateRule stores a new rule and indexes it by its next execution time
func (s *RedisStore) CreateRule(ctx context.Context, r *rule.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}

	key := s.ruleKey(r.TenantID, r.CreatedAt)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.ZAdd(ctx, s.ruleIndexKey(r.TenantID), redis.Z{
		Score:  float64(r.NextExecutionAt.Unix()),
		Member: strconv.FormatInt(r.CreatedAt.UnixNano(), 10),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store rule: %w", err)
	}

	s.log.Debug("Rule created",
		"tenant_id", r.TenantID,
		"property_id", r.PropertyID,
		"next_execution_at", r.NextExecutionAt.Format(time.RFC3339))
	return nil
}

// GetRule loads a rule by its composite identity
func (s *RedisStore) GetRule(ctx context.Context, tenantID string, createdAt time.Time) (*rule.Rule, error) {
	data, err := s.client.Get(ctx, s.ruleKey(tenantID, createdAt)).Result()
	if err == redis.Nil {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	var r rule.Rule
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule: %w", err)
	}
	return &r, nil
}

// ListRules returns every rule for a tenant, oldest first
func (s *RedisStore) ListRules(ctx context.Context, tenantID string) ([]*rule.Rule, error) {
	members, err := s.client.ZRange(ctx, s.ruleIndexKey(tenantID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return s.loadRules(ctx, tenantID, members)
}

// ListDue returns the tenant's rules whose next execution time has passed
// and which are eligible for processing. Paused rules and rules with auto
// generation disabled are filtered out even when their due time has passed.
func (s *RedisStore) ListDue(ctx context.Context, tenantID string, asOf time.Time) ([]*rule.Rule, error) {
	members, err := s.client.ZRangeByScore(ctx, s.ruleIndexKey(tenantID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(asOf.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due rules: %w", err)
	}

	rules, err := s.loadRules(ctx, tenantID, members)
	if err != nil {
		return nil, err
	}

	due := rules[:0]
	for _, r := range rules {
		if r.Due(asOf) {
			due = append(due, r)
		}
	}
	return due, nil
}

// loadRules fetches rule records for index members, dropping entries whose
// record has been deleted since indexing
func (s *RedisStore) loadRules(ctx context.Context, tenantID string, members []string) ([]*rule.Rule, error) {
	rules := make([]*rule.Rule, 0, len(members))
	for _, member := range members {
		nanos, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			s.log.Warn("Dropping malformed rule index member", "tenant_id", tenantID, "member", member)
			continue
		}
		r, err := s.GetRule(ctx, tenantID, time.Unix(0, nanos).UTC())
		if errors.Is(err, ErrRuleNotFound) {
			s.log.Warn("Rule missing for index member, removing from index",
				"tenant_id", tenantID, "member", member)
			s.client.ZRem(ctx, s.ruleIndexKey(tenantID), member)
			continue
		}
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// AdvanceRule is the atomic conditional advance performed after a fully
// successful run. The update is a compare-and-swap keyed on the rule's
// execution count inside a WATCH transaction: a concurrent advance, pause,
// or delete causes ErrAdvanceConflict or ErrRuleNotFound instead of a silent
// overwrite. It returns the updated rule.
func (s *RedisStore) AdvanceRule(ctx context.Context, tenantID string, createdAt time.Time, expectedCount int64, newNext, lastRun time.Time) (*rule.Rule, error) {
	key := s.ruleKey(tenantID, createdAt)
	var updated *rule.Rule

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrRuleNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}

		var r rule.Rule
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("failed to unmarshal rule: %w", err)
		}

		if r.ExecutionCount != expectedCount {
			return ErrAdvanceConflict
		}

		completed := lastRun.UTC()
		r.NextExecutionAt = newNext.UTC()
		r.ExecutionCount = expectedCount + 1
		r.LastExecutionAt = &completed

		newData, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("failed to marshal rule: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			pipe.ZAdd(ctx, s.ruleIndexKey(tenantID), redis.Z{
				Score:  float64(r.NextExecutionAt.Unix()),
				Member: strconv.FormatInt(createdAt.UnixNano(), 10),
			})
			return nil
		})
		if err != nil {
			return err
		}

		updated = &r
		return nil
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// The rule changed under us between read and write
		return nil, ErrAdvanceConflict
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("Rule advanced",
		"tenant_id", tenantID,
		"property_id", updated.PropertyID,
		"execution_count", updated.ExecutionCount,
		"next_execution_at", updated.NextExecutionAt.Format(time.RFC3339))
	return updated, nil
}

// SetRuleStatus updates a rule's lifecycle status (pause/resume/complete)
// without touching its scheduling fields
func (s *RedisStore) SetRuleStatus(ctx context.Context, tenantID string, createdAt time.Time, status rule.Status) error {
	key := s.ruleKey(tenantID, createdAt)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrRuleNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}

		var r rule.Rule
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return fmt.Errorf("failed to unmarshal rule: %w", err)
		}

		r.Status = status
		newData, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("failed to marshal rule: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrAdvanceConflict
	}
	return err
}

// PauseRule marks a rule paused so it is never selected as due
func (s *RedisStore) PauseRule(ctx context.Context, tenantID string, createdAt time.Time) error {
	return s.SetRuleStatus(ctx, tenantID, createdAt, rule.StatusPaused)
}

// ResumeRule reactivates a paused rule
func (s *RedisStore) ResumeRule(ctx context.Context, tenantID string, createdAt time.Time) error {
	return s.SetRuleStatus(ctx, tenantID, createdAt, rule.StatusActive)
}

// DeleteRule removes a rule and its index entry
func (s *RedisStore) DeleteRule(ctx context.Context, tenantID string, createdAt time.Time) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.ruleKey(tenantID, createdAt))
	pipe.ZRem(ctx, s.ruleIndexKey(tenantID), strconv.FormatInt(createdAt.UnixNano(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}
