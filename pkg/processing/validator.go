package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/stuKim0221/smart-lotto/pkg/common"
	"github.com/stuKim0221/smart-lotto/pkg/ingestion"
	"github.com/stuKim0221/smart-lotto/pkg/models"
)

// DefaultDrawValidator runs a chain of rules over a draw record before it is stored.
type DefaultDrawValidator struct {
	name   string
	logger common.Logger
	rules  []ValidationRule
}

// ValidationRule 验证规则
type ValidationRule func(ctx context.Context, record *models.DrawRecord) error

// NewDrawValidator 创建验证器, with the record invariants and a future-date guard.
func NewDrawValidator(name string, logger common.Logger, now func() time.Time) *DefaultDrawValidator {
	if now == nil {
		now = time.Now
	}
	validator := &DefaultDrawValidator{
		name:   name,
		logger: logger,
	}

	validator.AddRule(validateInvariants)
	validator.AddRule(notInFuture(now))

	return validator
}

// Validate returns a MalformedResultError naming the first rule that failed.
func (v *DefaultDrawValidator) Validate(ctx context.Context, record *models.DrawRecord) error {
	for _, rule := range v.rules {
		if err := rule(ctx, record); err != nil {
			v.logger.Warn("Round %d rejected: %v", record.Round, err)
			return &common.MalformedResultError{Round: record.Round, Reason: err.Error()}
		}
	}
	v.logger.Debug("Round %d validated", record.Round)
	return nil
}

// GetName 获取验证器名称
func (v *DefaultDrawValidator) GetName() string {
	return v.name
}

// AddRule 添加验证规则
func (v *DefaultDrawValidator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

func validateInvariants(_ context.Context, record *models.DrawRecord) error {
	return record.Validate()
}

func notInFuture(now func() time.Time) ValidationRule {
	return func(_ context.Context, record *models.DrawRecord) error {
		// one day of slack covers the time zone gap between the draw and UTC
		limit := models.DateOnly(now()).AddDate(0, 0, 1)
		if record.DrawDate.After(limit) {
			return fmt.Errorf("draw date %s is in the future", record.DrawDate.Format(models.DateLayout))
		}
		return nil
	}
}

// CalendarRule checks the draw date against the weekly schedule: round n is
// drawn on the KST calendar date of ingestion.DrawTimeFor(n).
func CalendarRule() ValidationRule {
	return func(_ context.Context, record *models.DrawRecord) error {
		want := models.DateOnly(ingestion.DrawTimeFor(record.Round))
		if !record.DrawDate.Equal(want) {
			return fmt.Errorf("draw date %s does not match the schedule for round %d (%s)",
				record.DrawDate.Format(models.DateLayout), record.Round, want.Format(models.DateLayout))
		}
		return nil
	}
}

// SequenceRule checks that the draw date sits strictly between the stored
// neighbouring rounds, so round order and date order agree.
func SequenceRule(lookup DrawLookup) ValidationRule {
	return func(ctx context.Context, record *models.DrawRecord) error {
		if prev, ok, err := lookup.Get(ctx, record.Round-1); err != nil {
			return fmt.Errorf("look up round %d: %w", record.Round-1, err)
		} else if ok && !prev.DrawDate.Before(record.DrawDate) {
			return fmt.Errorf("draw date %s not after round %d (%s)",
				record.DrawDate.Format(models.DateLayout), prev.Round, prev.DrawDate.Format(models.DateLayout))
		}

		if next, ok, err := lookup.Get(ctx, record.Round+1); err != nil {
			return fmt.Errorf("look up round %d: %w", record.Round+1, err)
		} else if ok && !next.DrawDate.After(record.DrawDate) {
			return fmt.Errorf("draw date %s not before round %d (%s)",
				record.DrawDate.Format(models.DateLayout), next.Round, next.DrawDate.Format(models.DateLayout))
		}
		return nil
	}
}
