// Package store implements the Redis-backed repositories for recurrence
// rules, reports, and inquiry events, plus the distributed locks the sweep
// uses.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/estatehub/reportsweep/internal/logger"
	"github.com/estatehub/reportsweep/internal/serialization"
)

var (
	// ErrRuleNotFound is returned when a rule does not exist, including a
	// rule deleted between listing and advancing
	ErrRuleNotFound = errors.New("rule not found")

	// ErrAdvanceConflict is returned when the conditional advance sees a
	// different execution count than expected
	ErrAdvanceConflict = errors.New("rule advance conflict")

	// ErrReportExists is returned when a report identifier is already taken;
	// reports are immutable and never overwritten
	ErrReportExists = errors.New("report already exists")

	// ErrReportNotFound is returned when a report does not exist
	ErrReportNotFound = errors.New("report not found")
)

// RedisStore is the key-value repository for all scheduler state
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	serializer *serialization.Serializer
	log        logger.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:     client,
		keyPrefix:  "reportsweep:",
		serializer: serialization.NewJSONSerializer(),
		log:        logger.Default().WithComponent(logger.ComponentStore),
	}, nil
}

// SetSerializer replaces the payload codec (for migrations or tests)
func (s *RedisStore) SetSerializer(ser *serialization.Serializer) {
	s.serializer = ser
}

// Client exposes the underlying Redis client for lock acquisition
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Key helpers. Rule identity is tenant + creation nanos; the due index is a
// per-tenant sorted set scored by next_execution_at.

func (s *RedisStore) ruleKey(tenantID string, createdAt time.Time) string {
	var b strings.Builder
	b.Grow(len(s.keyPrefix) + 5 + len(tenantID) + 1 + 20)
	b.WriteString(s.keyPrefix)
	b.WriteString("rule:")
	b.WriteString(tenantID)
	b.WriteString(":")
	b.WriteString(strconv.FormatInt(createdAt.UnixNano(), 10))
	return b.String()
}

func (s *RedisStore) ruleIndexKey(tenantID string) string {
	return s.keyPrefix + "rules:" + tenantID
}

func (s *RedisStore) reportKey(reportID string) string {
	return s.keyPrefix + "report:" + reportID
}

func (s *RedisStore) reportIndexKey(propertyID string) string {
	return s.keyPrefix + "reports:" + propertyID
}

func (s *RedisStore) inquiryKey(propertyID string) string {
	return s.keyPrefix + "inquiries:" + propertyID
}

// SweepLockKey is the per-tenant lock key preventing overlapping sweeps
func (s *RedisStore) SweepLockKey(tenantID string) string {
	return s.keyPrefix + "sweep_lock:" + tenantID
}

// RuleLockKey is the per-rule processing marker key
func (s *RedisStore) RuleLockKey(identity string) string {
	return s.keyPrefix + "rule_lock:" + identity
}
