package models

import (
	"fmt"

	"github.com/stuKim0221/smart-lotto/pkg/common"
)

// IntRange is an inclusive bound.
type IntRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r IntRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// FilterPolicy holds the rejection filters for generated combinations.
// Nil ranges and zero values disable the corresponding filter.
type FilterPolicy struct {
	Sum               *IntRange   `json:"sum,omitempty" yaml:"sum,omitempty"`
	Odd               *IntRange   `json:"odd,omitempty" yaml:"odd,omitempty"`
	MaxConsecutiveRun int         `json:"max_consecutive_run,omitempty" yaml:"max_consecutive_run,omitempty"`
	Exclude           []NumberSet `json:"exclude,omitempty" yaml:"-"`
	Distinct          bool        `json:"distinct,omitempty" yaml:"distinct,omitempty"`
	MinQuality        int         `json:"min_quality,omitempty" yaml:"min_quality,omitempty"`
}

func (f FilterPolicy) Validate() error {
	if f.Sum != nil && f.Sum.Min > f.Sum.Max {
		return fmt.Errorf("%w: sum range %d..%d is empty", common.ErrInvalidInput, f.Sum.Min, f.Sum.Max)
	}
	if f.Odd != nil {
		if f.Odd.Min > f.Odd.Max {
			return fmt.Errorf("%w: odd range %d..%d is empty", common.ErrInvalidInput, f.Odd.Min, f.Odd.Max)
		}
		if f.Odd.Min < 0 || f.Odd.Max > PickSize {
			return fmt.Errorf("%w: odd range must lie within 0..%d", common.ErrInvalidInput, PickSize)
		}
	}
	if f.MaxConsecutiveRun < 0 {
		return fmt.Errorf("%w: negative max consecutive run", common.ErrInvalidInput)
	}
	if f.MinQuality < 0 || f.MinQuality > 100 {
		return fmt.Errorf("%w: min quality must lie within 0..100", common.ErrInvalidInput)
	}
	for i, set := range f.Exclude {
		if !set.Valid() {
			return fmt.Errorf("%w: exclude[%d] %v is not a sorted set of %d distinct numbers", common.ErrInvalidInput, i, set, PickSize)
		}
	}
	return nil
}

// CombinationRequest asks for Count filtered combinations within MaxAttempts draws.
type CombinationRequest struct {
	Filters     FilterPolicy `json:"filters"`
	Count       int          `json:"count"`
	MaxAttempts int          `json:"max_attempts,omitempty"`
}

func (r CombinationRequest) Validate() error {
	if r.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1", common.ErrInvalidInput)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%w: negative attempt budget", common.ErrInvalidInput)
	}
	return r.Filters.Validate()
}
