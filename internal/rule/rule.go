// Package rule defines the recurrence rule that drives periodic report
// generation for a property, and the calculator that moves its due date.
package rule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Period is the interval added to a rule's due date on each advancement
type Period string

const (
	PeriodOneWeek  Period = "one_week"
	PeriodTwoWeeks Period = "two_weeks"
)

// Days returns the period length in days
func (p Period) Days() int {
	switch p {
	case PeriodTwoWeeks:
		return 14
	default:
		return 7
	}
}

// Valid reports whether the period is a known value
func (p Period) Valid() bool {
	return p == PeriodOneWeek || p == PeriodTwoWeeks
}

// Status represents the lifecycle state of a rule
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// ExecutionTime is the wall-clock time of day a rule fires at
type ExecutionTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseExecutionTime parses an "HH:MM" string
func ParseExecutionTime(s string) (ExecutionTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return ExecutionTime{}, fmt.Errorf("invalid execution time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return ExecutionTime{}, fmt.Errorf("invalid execution time %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return ExecutionTime{}, fmt.Errorf("invalid execution time %q: %w", s, err)
	}
	et := ExecutionTime{Hour: hour, Minute: minute}
	if !et.Valid() {
		return ExecutionTime{}, fmt.Errorf("invalid execution time %q: out of range", s)
	}
	return et, nil
}

// Valid reports whether the time of day is within range
func (et ExecutionTime) Valid() bool {
	return et.Hour >= 0 && et.Hour <= 23 && et.Minute >= 0 && et.Minute <= 59
}

func (et ExecutionTime) String() string {
	return fmt.Sprintf("%02d:%02d", et.Hour, et.Minute)
}

// Rule is a persisted recurrence configuration for one property. Its
// identity is the tenant ID plus the creation instant; CreatedAt doubles as
// the storage sort key and must never change after creation.
type Rule struct {
	TenantID        string        `json:"tenant_id" validate:"required"`
	CreatedAt       time.Time     `json:"created_at"`
	PropertyID      string        `json:"property_id" validate:"required"`
	PropertyName    string        `json:"property_name"`
	EmployeeID      string        `json:"employee_id"`
	StartDate       time.Time     `json:"start_date"`
	Period          Period        `json:"period" validate:"required,oneof=one_week two_weeks"`
	TargetWeekday   int           `json:"target_weekday" validate:"min=0,max=6"`
	ExecutionTime   ExecutionTime `json:"execution_time"`
	AutoGenerate    bool          `json:"auto_generate"`
	Status          Status        `json:"status" validate:"required,oneof=active paused completed"`
	NextExecutionAt time.Time     `json:"next_execution_at"`
	ExecutionCount  int64         `json:"execution_count"`
	LastExecutionAt *time.Time    `json:"last_execution_at,omitempty"`
}

// Params holds the caller-supplied fields for a new rule
type Params struct {
	TenantID      string
	PropertyID    string
	PropertyName  string
	EmployeeID    string
	StartDate     time.Time
	Period        Period
	TargetWeekday int
	ExecutionTime ExecutionTime
	AutoGenerate  bool
}

var validate = validator.New()

// New creates an active rule whose first due date is the first occurrence of
// the target weekday on or after the start date
func New(p Params) (*Rule, error) {
	r := &Rule{
		TenantID:      p.TenantID,
		CreatedAt:     time.Now().UTC(),
		PropertyID:    p.PropertyID,
		PropertyName:  p.PropertyName,
		EmployeeID:    p.EmployeeID,
		StartDate:     p.StartDate.UTC(),
		Period:        p.Period,
		TargetWeekday: p.TargetWeekday,
		ExecutionTime: p.ExecutionTime,
		AutoGenerate:  p.AutoGenerate,
		Status:        StatusActive,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.NextExecutionAt = FirstOccurrence(r.StartDate, r.TargetWeekday, r.ExecutionTime)
	return r, nil
}

// Validate checks all rule fields; invalid rules are rejected before they
// ever reach the sweeper
func (r *Rule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	if !r.ExecutionTime.Valid() {
		return fmt.Errorf("invalid rule: execution time %s out of range", r.ExecutionTime)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("invalid rule: start date is required")
	}
	return nil
}

// Identity returns the composite identity used for storage keys and dedupe
func (r *Rule) Identity() string {
	return r.TenantID + ":" + strconv.FormatInt(r.CreatedAt.UnixNano(), 10)
}

// Due reports whether the rule is eligible for processing at the given
// instant. Paused rules and rules with auto-generation disabled are never
// due regardless of their next execution time.
func (r *Rule) Due(asOf time.Time) bool {
	if r.Status != StatusActive || !r.AutoGenerate {
		return false
	}
	return !r.NextExecutionAt.After(asOf)
}
