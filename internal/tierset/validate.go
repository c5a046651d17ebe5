package tierset

import (
	"fmt"
	"sort"
	"strings"
)

// Validated field names.
const (
	FieldBaseRate      = "base_rate"
	FieldMinimumUsage  = "minimum_usage"
	FieldUnitOfMeasure = "unit_of_measure"
	FieldTiers         = "tiers"
)

// Stable error codes, one per violation kind.
const (
	CodeFieldRequired        = "field_required"
	CodeNegativeValue        = "negative_value"
	CodeBoundOrdering        = "bound_ordering"
	CodeNonTerminalUnbounded = "non_terminal_unbounded"
	CodeOverlap              = "overlap"
	CodeGap                  = "gap"
	CodeFirstTierNotZero     = "first_tier_not_zero"
	CodeTooManyTiers         = "too_many_tiers"
)

// FieldError is a single validation failure on one field.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors maps field names to their current validation failure. An empty
// map means the configuration is saveable.
type Errors map[string]FieldError

func (e Errors) OK() bool { return len(e) == 0 }

// Fields returns the failing field names in deterministic order.
func (e Errors) Fields() []string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Config is the full pricing configuration handed to Validate.
type Config struct {
	TieringEnabled bool
	BaseRate       *float64
	MinimumUsage   *float64
	UnitOfMeasure  string
	Tiers          []Tier
}

// Validate checks a pricing configuration and returns the violations found.
// It is pure: the input is never mutated (tiers are sorted on a copy) and
// it never panics. Scalar checks run regardless of tiering state; tier
// checks surface at most one error at a time, walking the sorted set left
// to right and stopping at the first violation.
func Validate(cfg Config) Errors {
	errs := Errors{}

	if cfg.BaseRate != nil && *cfg.BaseRate < 0 {
		errs[FieldBaseRate] = FieldError{CodeNegativeValue, "Base rate cannot be negative."}
	}
	if cfg.MinimumUsage != nil && *cfg.MinimumUsage < 0 {
		errs[FieldMinimumUsage] = FieldError{CodeNegativeValue, "Minimum usage cannot be negative."}
	}
	if strings.TrimSpace(cfg.UnitOfMeasure) == "" {
		errs[FieldUnitOfMeasure] = FieldError{CodeFieldRequired, "Unit of measure is required."}
	}

	if !cfg.TieringEnabled {
		return errs
	}
	if len(cfg.Tiers) == 0 {
		errs[FieldTiers] = FieldError{CodeFieldRequired, "At least one tier is required when tiered pricing is enabled."}
		return errs
	}

	if tierErr, found := checkTiers(sortedCopy(cfg.Tiers)); found {
		errs[FieldTiers] = tierErr
	}
	return errs
}

func checkTiers(tiers []Tier) (FieldError, bool) {
	for i, tier := range tiers {
		if tier.Rate < 0 {
			return FieldError{CodeNegativeValue, "Tier rates cannot be negative."}, true
		}
		if tier.ToAmount != nil && *tier.ToAmount < tier.FromAmount {
			return FieldError{CodeBoundOrdering, fmt.Sprintf("Tier %d: Upper bound must be greater than or equal to lower bound.", i+1)}, true
		}

		if i == len(tiers)-1 {
			continue
		}
		if tier.ToAmount == nil {
			return FieldError{CodeNonTerminalUnbounded, "Only the last tier can have an unlimited upper bound (leave 'To' blank)."}, true
		}
		next := tiers[i+1]
		if *tier.ToAmount > next.FromAmount {
			return FieldError{CodeOverlap, fmt.Sprintf("Tier %d overlaps with Tier %d.", i+1, i+2)}, true
		}
		// Touching bounds are allowed; a hole wider than one whole unit
		// is not.
		if *tier.ToAmount+1 < next.FromAmount {
			return FieldError{CodeGap, fmt.Sprintf("Gap detected between Tier %d and Tier %d. Tiers must be contiguous.", i+1, i+2)}, true
		}
	}

	if tiers[0].FromAmount != 0 {
		return FieldError{CodeFirstTierNotZero, "The first tier must start from 0."}, true
	}
	return FieldError{}, false
}

func sortedCopy(tiers []Tier) []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FromAmount < out[j].FromAmount
	})
	return out
}
