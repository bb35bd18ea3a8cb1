// AngelaMos | 2026
// conditions.go

package access

import (
	"encoding/json"
	"fmt"
	"math"
)

// ConditionOutcome is what a custom condition reports back to the engine.
type ConditionOutcome struct {
	Satisfied bool
	Blocking  bool
	Observed  any
	Message   string
}

// ConditionFunc evaluates one custom condition. declared is the value from
// the matrix entry, uc may be nil. A returned error denies the check as an
// internal evaluation failure.
type ConditionFunc func(declared any, uc *UsageContext) (ConditionOutcome, error)

func defaultConditions() map[string]ConditionFunc {
	return map[string]ConditionFunc{
		ConditionMaxFilters:    maxFiltersCondition,
		ConditionRequiresSetup: requiresSetupCondition,
	}
}

func maxFiltersCondition(declared any, uc *UsageContext) (ConditionOutcome, error) {
	limit, ok := toInt64(declared)
	if !ok {
		return ConditionOutcome{}, fmt.Errorf("maxFilters: declared cap %v is not a number", declared)
	}

	raw, present := metadataValue(uc, "filterCount")
	if !present {
		return ConditionOutcome{Satisfied: true}, nil
	}

	count, ok := toInt64(raw)
	if !ok {
		return ConditionOutcome{}, fmt.Errorf("maxFilters: filterCount %v is not a number", raw)
	}

	if count > limit {
		return ConditionOutcome{
			Blocking: true,
			Observed: count,
			Message:  fmt.Sprintf("Filter limit exceeded: %d of %d filters allowed", count, limit),
		}, nil
	}

	return ConditionOutcome{Satisfied: true, Observed: count}, nil
}

func requiresSetupCondition(declared any, uc *UsageContext) (ConditionOutcome, error) {
	required, ok := declared.(bool)
	if !ok {
		return ConditionOutcome{}, fmt.Errorf("requiresSetup: declared value %v is not a boolean", declared)
	}
	if !required {
		return ConditionOutcome{Satisfied: true}, nil
	}

	raw, _ := metadataValue(uc, "isSetupComplete")
	complete, _ := raw.(bool)
	if complete {
		return ConditionOutcome{Satisfied: true, Observed: true}, nil
	}

	return ConditionOutcome{
		Blocking: true,
		Observed: complete,
		Message:  "Setup must be completed before using this feature",
	}, nil
}

func metadataValue(uc *UsageContext, key string) (any, bool) {
	if uc == nil || uc.Metadata == nil {
		return nil, false
	}
	v, ok := uc.Metadata[key]
	return v, ok
}

// toInt64 accepts the numeric shapes metadata arrives in, including JSON
// decoded float64 and json.Number. Values beyond the int64 range saturate
// so an oversized count still exceeds any declared cap.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n)), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil && !math.IsInf(f, 0) {
			return 0, false
		}
		return floatToInt64(f)
	}
	return 0, false
}

func uintToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

// floatToInt64 rejects NaN and fractions. float64(math.MaxInt64) rounds up
// to 2^63, so the upper bound is exclusive.
func floatToInt64(f float64) (int64, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	case f != math.Trunc(f):
		return 0, false
	}
	return int64(f), true
}
